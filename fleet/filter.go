package fleet

import (
	"net/url"
	"strconv"
)

// ListParams are the pagination and search parameters every list endpoint accepts.
type ListParams struct {
	Page   int
	Limit  int
	Search string
}

func (p ListParams) apply(v url.Values) {
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

type UserFilter struct {
	ListParams
	Role      UserRole
	Status    UserStatus
	CompanyID string
}

// Values encodes the non-zero fields as query parameters.
func (f UserFilter) Values() url.Values {
	v := url.Values{}
	f.apply(v)
	setIf(v, "role", string(f.Role))
	setIf(v, "status", string(f.Status))
	setIf(v, "companyId", f.CompanyID)
	return v
}

type CompanyFilter struct {
	ListParams
	Status CompanyStatus
}

func (f CompanyFilter) Values() url.Values {
	v := url.Values{}
	f.apply(v)
	setIf(v, "status", string(f.Status))
	return v
}

type VehicleFilter struct {
	ListParams
	Type      VehicleType
	Status    VehicleStatus
	CompanyID string
}

func (f VehicleFilter) Values() url.Values {
	v := url.Values{}
	f.apply(v)
	setIf(v, "type", string(f.Type))
	setIf(v, "status", string(f.Status))
	setIf(v, "companyId", f.CompanyID)
	return v
}
