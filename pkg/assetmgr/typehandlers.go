package assetmgr

import (
	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/types"
)

// EditRequest is the generic, type-agnostic payload for New/Edit/Modify/
// AddTo/DropFrom/Import requests. Every asset type plugs its
// type-specific config validation in before calling the shared handler
// capability below; none of them need their own copy of the New/Modify/
// Build wiring (spec §9, Design Notes: "a set of closed variants... with a
// shared handler capability. Dispatch by type tag at the request
// boundary").
type EditRequest struct {
	AssetName string          `json:"asset_name"`
	Type      types.AssetType `json:"type"`
	Inputs    []string        `json:"inputs"`
	Config    []byte          `json:"config,omitempty"`
	TaskName  string          `json:"task_name"`
	TaskDef   types.TaskDef   `json:"task_def"`
	Priority  int32           `json:"priority,omitempty"`
}

// typeValidator is implemented once per closed asset-type variant to
// reject a config this type doesn't accept, before the shared handler
// below ever opens a transaction. Kept tiny and data-only on purpose: the
// variants differ only in what a valid Config looks like, not in how a
// build is submitted.
type typeValidator func(cfg []byte) error

var typeValidators = map[types.AssetType]typeValidator{
	types.AssetTypeImagery:             validateNonEmptyConfig,
	types.AssetTypeVector:              validateNonEmptyConfig,
	types.AssetTypeTerrain:             validateNonEmptyConfig,
	types.AssetTypeMap:                 validateNonEmptyConfig,
	types.AssetTypeDatabase:            validateNonEmptyConfig,
	types.AssetTypeMapDatabase:         validateNonEmptyConfig,
	types.AssetTypeMercatorMapDatabase: validateNonEmptyConfig,
	types.AssetTypeKML:                 validateNonEmptyConfig,
}

func validateNonEmptyConfig(cfg []byte) error {
	if len(cfg) == 0 {
		return ferrors.New(ferrors.KindClientRequest, "assetmgr.validateNonEmptyConfig", errEmptyConfig)
	}
	return nil
}

var errEmptyConfig = ferrors.Newf(ferrors.KindClientRequest, "assetmgr.typehandlers", "config payload is required")

// HandleNewRequest creates a brand new asset of req.Type.
func (m *Manager) HandleNewRequest(req EditRequest) (types.Ref, error) {
	if err := m.validateType(req); err != nil {
		return types.Ref{}, err
	}
	m.mu.Lock()
	_, exists := m.assets[req.AssetName]
	m.mu.Unlock()
	if exists {
		return types.Ref{}, ferrors.Newf(ferrors.KindClientRequest, "assetmgr.HandleNewRequest", "asset %q already exists", req.AssetName)
	}
	return m.Build(req.AssetName, req.Type, req.TaskDef, req.TaskName, req.Priority)
}

// HandleEditRequest and HandleModifyRequest both resubmit a build for an
// existing asset; they're distinguished only at the client/CLI layer by
// whether the caller is changing config (Edit) or inputs (Modify), which
// this package treats identically once a TaskDef has been produced.
func (m *Manager) HandleEditRequest(req EditRequest) (types.Ref, error) {
	return m.handleExistingAssetRequest(req)
}

func (m *Manager) HandleModifyRequest(req EditRequest) (types.Ref, error) {
	return m.handleExistingAssetRequest(req)
}

// HandleAddToRequest appends inputs to a composite asset (Database,
// MapDatabase, MercatorMapDatabase) and resubmits its build.
func (m *Manager) HandleAddToRequest(req EditRequest) (types.Ref, error) {
	switch req.Type {
	case types.AssetTypeDatabase, types.AssetTypeMapDatabase, types.AssetTypeMercatorMapDatabase:
		return m.handleExistingAssetRequest(req)
	default:
		return types.Ref{}, ferrors.Newf(ferrors.KindClientRequest, "assetmgr.HandleAddToRequest", "asset type %s is not composite", req.Type)
	}
}

// HandleDropFromRequest removes inputs from a composite asset and
// resubmits its build, leaving prior versions untouched (spec §3: "never
// destroyed").
func (m *Manager) HandleDropFromRequest(req EditRequest) (types.Ref, error) {
	switch req.Type {
	case types.AssetTypeDatabase, types.AssetTypeMapDatabase, types.AssetTypeMercatorMapDatabase:
		return m.handleExistingAssetRequest(req)
	default:
		return types.Ref{}, ferrors.Newf(ferrors.KindClientRequest, "assetmgr.HandleDropFromRequest", "asset type %s is not composite", req.Type)
	}
}

// HandleImportRequest is ProductReImport's request-boundary counterpart:
// Vector/Imagery/MercatorMapDatabase assets reimport by rebuilding their
// current version in place rather than creating a new one (spec §9, Open
// Question).
func (m *Manager) HandleImportRequest(req EditRequest) error {
	return m.ProductReImport(req.AssetName)
}

func (m *Manager) handleExistingAssetRequest(req EditRequest) (types.Ref, error) {
	if err := m.validateType(req); err != nil {
		return types.Ref{}, err
	}
	m.mu.Lock()
	a, exists := m.assets[req.AssetName]
	m.mu.Unlock()
	if !exists {
		return types.Ref{}, ferrors.Newf(ferrors.KindClientRequest, "assetmgr.handleExistingAssetRequest", "unknown asset %q", req.AssetName)
	}
	if a.Type != req.Type {
		return types.Ref{}, ferrors.Newf(ferrors.KindClientRequest, "assetmgr.handleExistingAssetRequest", "asset %q is type %s, not %s", req.AssetName, a.Type, req.Type)
	}
	return m.Build(req.AssetName, req.Type, req.TaskDef, req.TaskName, req.Priority)
}

func (m *Manager) validateType(req EditRequest) error {
	v, ok := typeValidators[req.Type]
	if !ok {
		return ferrors.Newf(ferrors.KindClientRequest, "assetmgr.validateType", "unknown asset type %q", req.Type)
	}
	return v(req.Config)
}
