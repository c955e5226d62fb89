// Package services wraps the API client with one type per resource family.
// Services build paths and payloads and nothing else: retries, auth and
// response normalization all happen in the client they hold.
package services

import (
	"net/url"
	"strings"

	"github.com/avl-fleet/fleetctl/apiclient"
)

// Base paths of the resource families.
const (
	UsersPath     = "/users"
	CompaniesPath = "/companies"
	VehiclesPath  = "/vehicles"
)

// Services groups every resource service over one client.
type Services struct {
	Users     *Users
	Companies *Companies
	Vehicles  *Vehicles
}

func New(r apiclient.Requester) *Services {
	return &Services{
		Users:     NewUsers(r),
		Companies: NewCompanies(r),
		Vehicles:  NewVehicles(r),
	}
}

// resource is the part every service shares: the client and a base path.
type resource struct {
	r    apiclient.Requester
	base string
}

// path joins base with escaped segments.
func (res resource) path(segments ...string) string {
	var b strings.Builder
	b.WriteString(res.base)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func requireBody(body any) error {
	if body == nil {
		return &apiclient.ValidationError{Field: "body", Message: "is required"}
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
