package store

import "time"

// RestorePoint is a recorded copy of package records taken before a
// destructive operation.
type RestorePoint struct {
	ID           int64
	CreatedAt    time.Time
	Reason       string
	PackageCount int
	Path         string
}

// RestorePointPackage is one package captured in a restore point.
type RestorePointPackage struct {
	RestorePointID int64
	PackageName    string
	Version        string
	Source         string
}
