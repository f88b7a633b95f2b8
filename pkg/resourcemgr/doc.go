// Package resourcemgr matches waiting tasks to connected resource
// providers: CPU and volume reservations, provider liveness, and the
// activation loop that starts jobs as capacity frees up.
package resourcemgr
