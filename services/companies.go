package services

import (
	"context"

	"github.com/avl-fleet/fleetctl/apiclient"
	"github.com/avl-fleet/fleetctl/fleet"
)

type Companies struct {
	resource
}

func NewCompanies(r apiclient.Requester) *Companies {
	return &Companies{resource{r: r, base: CompaniesPath}}
}

func (s *Companies) List(ctx context.Context, f fleet.CompanyFilter) (*apiclient.Response[fleet.Page[fleet.Company]], error) {
	return apiclient.Get[fleet.Page[fleet.Company]](ctx, s.r, s.path(), apiclient.WithQuery(f.Values()))
}

func (s *Companies) Get(ctx context.Context, id string) (*apiclient.Response[fleet.Company], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Get[fleet.Company](ctx, s.r, s.path(id))
}

func (s *Companies) Create(ctx context.Context, company any) (*apiclient.Response[fleet.Company], error) {
	if err := requireBody(company); err != nil {
		return nil, err
	}
	return apiclient.Post[fleet.Company](ctx, s.r, s.path(), company)
}

func (s *Companies) Update(ctx context.Context, id string, company any) (*apiclient.Response[fleet.Company], error) {
	if err := firstErr(fleet.RequireID("id", id), requireBody(company)); err != nil {
		return nil, err
	}
	return apiclient.Put[fleet.Company](ctx, s.r, s.path(id), company)
}

func (s *Companies) Delete(ctx context.Context, id string) (*apiclient.Response[apiclient.Empty], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Delete[apiclient.Empty](ctx, s.r, s.path(id))
}

func (s *Companies) Settings(ctx context.Context, id string) (*apiclient.Response[fleet.CompanySettings], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Get[fleet.CompanySettings](ctx, s.r, s.path(id, "settings"))
}

func (s *Companies) UpdateSettings(ctx context.Context, id string, settings any) (*apiclient.Response[fleet.CompanySettings], error) {
	if err := firstErr(fleet.RequireID("id", id), requireBody(settings)); err != nil {
		return nil, err
	}
	return apiclient.Put[fleet.CompanySettings](ctx, s.r, s.path(id, "settings"), settings)
}

// UpdateSubscription patches the plan; only the fields given change.
func (s *Companies) UpdateSubscription(ctx context.Context, id string, subscription any) (*apiclient.Response[fleet.Company], error) {
	if err := firstErr(fleet.RequireID("id", id), requireBody(subscription)); err != nil {
		return nil, err
	}
	return apiclient.Patch[fleet.Company](ctx, s.r, s.path(id, "subscription"), subscription)
}

func (s *Companies) UploadLogo(ctx context.Context, id string, file apiclient.FileUpload, opts ...apiclient.UploadOption) (*apiclient.Response[fleet.FileURL], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.UploadAs[fleet.FileURL](ctx, s.r, s.path(id, "logo"), file, opts...)
}
