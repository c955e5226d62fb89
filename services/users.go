package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/avl-fleet/fleetctl/apiclient"
	"github.com/avl-fleet/fleetctl/fleet"
)

// tokenClearer is implemented by clients that own the credential store.
type tokenClearer interface {
	ClearTokens() error
}

type Users struct {
	resource
}

func NewUsers(r apiclient.Requester) *Users {
	return &Users{resource{r: r, base: UsersPath}}
}

// Login exchanges credentials for tokens. Storing them is the caller's call.
func (s *Users) Login(ctx context.Context, req fleet.LoginRequest) (*apiclient.Response[fleet.LoginResponse], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return apiclient.Post[fleet.LoginResponse](ctx, s.r, s.path("auth", "login"), req)
}

// Logout tells the server to end the session and always clears local tokens,
// even when the call fails.
func (s *Users) Logout(ctx context.Context) (*apiclient.Response[apiclient.Empty], error) {
	resp, err := apiclient.Post[apiclient.Empty](ctx, s.r, s.path("auth", "logout"), nil)
	if c, ok := s.r.(tokenClearer); ok {
		if clearErr := c.ClearTokens(); clearErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to clear local tokens: %w", clearErr))
		}
	}
	return resp, err
}

// RefreshToken calls the users service refresh endpoint explicitly. The client
// refreshes on its own after a 401; this is for callers that want to rotate
// tokens ahead of time.
func (s *Users) RefreshToken(ctx context.Context, refreshToken string) (*apiclient.Response[fleet.LoginResponse], error) {
	if refreshToken == "" {
		return nil, &apiclient.ValidationError{Field: "refreshToken", Message: "is required"}
	}
	return apiclient.Post[fleet.LoginResponse](ctx, s.r, s.path("auth", "refresh"),
		map[string]string{"refreshToken": refreshToken})
}

func (s *Users) List(ctx context.Context, f fleet.UserFilter) (*apiclient.Response[fleet.Page[fleet.User]], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return apiclient.Get[fleet.Page[fleet.User]](ctx, s.r, s.path(), apiclient.WithQuery(f.Values()))
}

func (s *Users) Get(ctx context.Context, id string) (*apiclient.Response[fleet.User], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Get[fleet.User](ctx, s.r, s.path(id))
}

// Create accepts a fleet.User or a partial fleet.Fields.
func (s *Users) Create(ctx context.Context, user any) (*apiclient.Response[fleet.User], error) {
	if err := requireBody(user); err != nil {
		return nil, err
	}
	return apiclient.Post[fleet.User](ctx, s.r, s.path(), user)
}

func (s *Users) Update(ctx context.Context, id string, user any) (*apiclient.Response[fleet.User], error) {
	if err := firstErr(fleet.RequireID("id", id), requireBody(user)); err != nil {
		return nil, err
	}
	return apiclient.Put[fleet.User](ctx, s.r, s.path(id), user)
}

func (s *Users) Delete(ctx context.Context, id string) (*apiclient.Response[apiclient.Empty], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Delete[apiclient.Empty](ctx, s.r, s.path(id))
}

// Profile returns the authenticated user.
func (s *Users) Profile(ctx context.Context) (*apiclient.Response[fleet.User], error) {
	return apiclient.Get[fleet.User](ctx, s.r, s.path("profile"))
}

func (s *Users) UpdateProfile(ctx context.Context, profile any) (*apiclient.Response[fleet.User], error) {
	if err := requireBody(profile); err != nil {
		return nil, err
	}
	return apiclient.Put[fleet.User](ctx, s.r, s.path("profile"), profile)
}

func (s *Users) ChangePassword(ctx context.Context, req fleet.ChangePasswordRequest) (*apiclient.Response[apiclient.Empty], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return apiclient.Post[apiclient.Empty](ctx, s.r, s.path("profile", "change-password"), req)
}

func (s *Users) UploadProfileImage(ctx context.Context, file apiclient.FileUpload, opts ...apiclient.UploadOption) (*apiclient.Response[fleet.FileURL], error) {
	return apiclient.UploadAs[fleet.FileURL](ctx, s.r, s.path("profile", "image"), file, opts...)
}

func (s *Users) BulkCreate(ctx context.Context, users []fleet.Fields) (*apiclient.Response[fleet.BulkCreateResult], error) {
	if len(users) == 0 {
		return nil, &apiclient.ValidationError{Field: "users", Message: "must not be empty"}
	}
	return apiclient.Post[fleet.BulkCreateResult](ctx, s.r, s.path("bulk"), map[string]any{"users": users})
}

func (s *Users) BulkUpdate(ctx context.Context, updates []fleet.UserUpdate) (*apiclient.Response[fleet.BulkUpdateResult], error) {
	if len(updates) == 0 {
		return nil, &apiclient.ValidationError{Field: "updates", Message: "must not be empty"}
	}
	for _, u := range updates {
		if err := fleet.RequireID("updates.id", u.ID); err != nil {
			return nil, err
		}
	}
	return apiclient.Put[fleet.BulkUpdateResult](ctx, s.r, s.path("bulk"), map[string]any{"updates": updates})
}

func (s *Users) BulkDelete(ctx context.Context, ids []string) (*apiclient.Response[fleet.BulkDeleteResult], error) {
	if len(ids) == 0 {
		return nil, &apiclient.ValidationError{Field: "userIds", Message: "must not be empty"}
	}
	return apiclient.Delete[fleet.BulkDeleteResult](ctx, s.r, s.path("bulk"),
		apiclient.WithBody(map[string]any{"userIds": ids}))
}
