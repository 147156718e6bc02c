package models

// PackageQuery is one specifier in a batch catalog query. Name "*"
// matches every package; Version, when present, is compared by literal
// equality (no range or caret matching).
type PackageQuery struct {
	Name    string `json:"Name" validate:"required"`
	Version string `json:"Version,omitempty"`
}

// QueryPackagesParams carries the ordered specifier batch plus the
// continuation cursor from a previous page.
type QueryPackagesParams struct {
	Offset  int            `query:"offset"`
	Queries []PackageQuery `json:"queries" validate:"required,min=1,dive"`
}

// PackageParams addresses a package by its metadata ID.
type PackageParams struct {
	ID string `path:"id" validate:"required"`
}

// PackageNameParams addresses every version sharing a name.
type PackageNameParams struct {
	Name string `path:"name" validate:"required"`
}

// UpdatePackageInput is the PUT payload: the package ID from the path and
// the replacement content.
type UpdatePackageInput struct {
	ID string `path:"id" validate:"required"`
	PackageInput
}
