// Package assetmgr owns the asset/version graph and its on-disk image: the
// request dispatcher on port 13031, the PendingAssetGuard transactional
// commit path, the AssetChanges listener registry, and the resourcemgr
// notifier that feeds task completion back into version state (spec §4.2).
package assetmgr
