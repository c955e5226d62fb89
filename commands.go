package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/avl-fleet/fleetctl/apiclient"
	"github.com/avl-fleet/fleetctl/fleet"
	"github.com/avl-fleet/fleetctl/tokenstore"
)

// ErrNoAccessToken is returned when a login response carries no token.
var ErrNoAccessToken = errors.New("login response has no access token")

func loginCmd(f *globalFlags) *cobra.Command {
	var req fleet.LoginRequest

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store tokens",
		Long: `Sign in with email and password. Tokens are stored in the token file
under the selected profile. The password can also be given in FLEET_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Email = cmp.Or(req.Email, os.Getenv("FLEET_EMAIL"))
			req.Password = cmp.Or(req.Password, os.Getenv("FLEET_PASSWORD"))
			return executeAnonymous(cmd, f, func(ctx context.Context, s *session) (result, error) {
				return login(ctx, s, req)
			})
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Account email (or FLEET_EMAIL env)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password (or FLEET_PASSWORD env)")
	cmd.Flags().BoolVar(&req.RememberMe, "remember-me", false, "Ask for a long-lived session")

	return cmd
}

func login(ctx context.Context, s *session, req fleet.LoginRequest) (result, error) {
	s.d.LoggingIn(req.Email)

	// Drop any previous session; a 401 here is about the credentials.
	if err := s.client.ClearTokens(); err != nil {
		s.logger.Warn("failed to clear previous tokens", "err", err)
	}

	resp, err := s.svc.Users.Login(ctx, req)
	if err != nil {
		var authErr *apiclient.AuthError
		var httpErr *apiclient.HTTPError
		if errors.As(err, &authErr) && errors.As(authErr.Err, &httpErr) {
			err = httpErr
		}
		s.d.LoginFailed(err)
		return result{}, err
	}

	data := resp.Data
	if data.Token == "" {
		s.d.LoginFailed(ErrNoAccessToken)
		return result{}, ErrNoAccessToken
	}

	cred := tokenstore.Credential{
		AccessToken:  data.Token,
		RefreshToken: data.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    apiclient.ExpiryFor(data.Token, data.ExpiresIn, time.Now()),
	}
	if err := s.client.SetTokens(cred); err != nil {
		s.d.TokenSaveFailed(err)
		return result{}, fmt.Errorf("failed to save tokens: %w", err)
	}
	s.d.TokenSaved(s.cfg.TokenFile)

	name := cmp.Or(data.User.FullName(), data.User.Email, req.Email)
	s.d.LoggedIn(name, cred.ExpiresAt)

	return result{value: data.User, summary: "Logged in as " + name}, nil
}

func logoutCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executeAnonymous(cmd, f, logout)
		},
	}
}

func logout(ctx context.Context, s *session) (result, error) {
	if !s.client.IsAuthenticated() {
		if err := s.client.ClearTokens(); err != nil {
			return result{}, err
		}
		s.d.LoggedOut()
		return result{summary: "Not logged in"}, nil
	}

	s.d.Requesting("Logging out")
	_, err := s.svc.Users.Logout(ctx)
	if s.client.IsAuthenticated() {
		return result{}, fmt.Errorf("logout: %w", err)
	}
	if err != nil {
		s.logger.Warn("server-side logout failed", "err", err)
	}
	s.d.LoggedOut()
	return result{summary: "Logged out"}, nil
}

func statusCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current environment and session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, f, status)
		},
	}
}

func status(ctx context.Context, s *session) (result, error) {
	view := statusView{
		Env:           s.cfg.Env,
		BaseURL:       s.cfg.BaseURL,
		Profile:       s.cfg.Profile,
		Authenticated: s.client.IsAuthenticated(),
	}
	if cred := s.store.Get(); cred != nil && !cred.ExpiresAt.IsZero() {
		expiresAt := cred.ExpiresAt
		view.ExpiresAt = &expiresAt
	}

	if view.Authenticated {
		s.d.Requesting("Fetching profile")
		resp, err := s.svc.Users.Profile(ctx)
		if err != nil {
			return result{}, err
		}
		view.User = &resp.Data
	}

	return result{value: view}, nil
}

func addListFlags(cmd *cobra.Command, p *fleet.ListParams) {
	cmd.Flags().IntVar(&p.Page, "page", 0, "Page number (1-based)")
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "Items per page")
	cmd.Flags().StringVar(&p.Search, "search", "", "Free-text search")
}

func getCmd[T any](f *globalFlags, noun string, get func(context.Context, *session, string) (*apiclient.Response[T], error)) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one " + noun,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				s.d.Requesting("Fetching " + noun + " " + args[0])
				resp, err := get(ctx, s, args[0])
				if err != nil {
					return result{}, err
				}
				return result{value: resp.Data}, nil
			})
		},
	}
}

func pageSummary(noun string, m apiclient.Meta, n int) string {
	if m.Total > n {
		return fmt.Sprintf("%d of %d %s", n, m.Total, noun)
	}
	return fmt.Sprintf("%d %s", n, noun)
}

func usersCmd(f *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var filter fleet.UserFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				s.d.Requesting("Listing users")
				resp, err := s.svc.Users.List(ctx, filter)
				if err != nil {
					return result{}, err
				}
				page := resp.Data
				return result{value: page, summary: pageSummary("users", page.Meta, len(page.Items))}, nil
			})
		},
	}
	addListFlags(list, &filter.ListParams)
	list.Flags().StringVar((*string)(&filter.Role), "role", "", "Filter by role")
	list.Flags().StringVar((*string)(&filter.Status), "status", "", "Filter by status")
	list.Flags().StringVar(&filter.CompanyID, "company", "", "Filter by company ID")

	cmd.AddCommand(list, getCmd(f, "user", func(ctx context.Context, s *session, id string) (*apiclient.Response[fleet.User], error) {
		return s.svc.Users.Get(ctx, id)
	}))
	return cmd
}

func companiesCmd(f *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Manage companies",
	}

	var filter fleet.CompanyFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				s.d.Requesting("Listing companies")
				resp, err := s.svc.Companies.List(ctx, filter)
				if err != nil {
					return result{}, err
				}
				page := resp.Data
				return result{value: page, summary: pageSummary("companies", page.Meta, len(page.Items))}, nil
			})
		},
	}
	addListFlags(list, &filter.ListParams)
	list.Flags().StringVar((*string)(&filter.Status), "status", "", "Filter by status")

	cmd.AddCommand(list, getCmd(f, "company", func(ctx context.Context, s *session, id string) (*apiclient.Response[fleet.Company], error) {
		return s.svc.Companies.Get(ctx, id)
	}))
	return cmd
}

func vehiclesCmd(f *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "Manage vehicles",
	}

	var filter fleet.VehicleFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List vehicles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				s.d.Requesting("Listing vehicles")
				resp, err := s.svc.Vehicles.List(ctx, filter)
				if err != nil {
					return result{}, err
				}
				page := resp.Data
				return result{value: page, summary: pageSummary("vehicles", page.Meta, len(page.Items))}, nil
			})
		},
	}
	addListFlags(list, &filter.ListParams)
	list.Flags().StringVar((*string)(&filter.Type), "type", "", "Filter by vehicle type")
	list.Flags().StringVar((*string)(&filter.Status), "status", "", "Filter by status")
	list.Flags().StringVar(&filter.CompanyID, "company", "", "Filter by company ID")

	assign := &cobra.Command{
		Use:   "assign-device <vehicle-id> <device-id>",
		Short: "Attach a tracking device to a vehicle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				s.d.Requesting("Assigning device " + args[1])
				resp, err := s.svc.Vehicles.AssignDevice(ctx, args[0], args[1])
				if err != nil {
					return result{}, err
				}
				return result{value: resp.Data, summary: "Device " + args[1] + " assigned"}, nil
			})
		},
	}

	documents := &cobra.Command{
		Use:   "documents <vehicle-id>",
		Short: "List a vehicle's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				s.d.Requesting("Listing documents")
				resp, err := s.svc.Vehicles.Documents(ctx, args[0])
				if err != nil {
					return result{}, err
				}
				return result{value: resp.Data, summary: fmt.Sprintf("%d documents", len(resp.Data))}, nil
			})
		},
	}

	cmd.AddCommand(
		list,
		getCmd(f, "vehicle", func(ctx context.Context, s *session, id string) (*apiclient.Response[fleet.Vehicle], error) {
			return s.svc.Vehicles.Get(ctx, id)
		}),
		assign,
		documents,
		uploadDocumentCmd(f),
	)
	return cmd
}

func uploadDocumentCmd(f *globalFlags) *cobra.Command {
	var (
		docType    string
		expiryDate string
	)

	cmd := &cobra.Command{
		Use:   "upload-document <vehicle-id> <file>",
		Short: "Upload a document for a vehicle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, f, func(ctx context.Context, s *session) (result, error) {
				return uploadDocument(ctx, s, args[0], args[1], docType, expiryDate)
			})
		},
	}

	cmd.Flags().StringVar(&docType, "type", "", "Document type, e.g. registration or insurance")
	cmd.Flags().StringVar(&expiryDate, "expiry-date", "", "Expiry date (YYYY-MM-DD)")

	return cmd
}

func uploadDocument(ctx context.Context, s *session, vehicleID, path, docType, expiryDate string) (result, error) {
	file, err := os.Open(path)
	if err != nil {
		return result{}, err
	}
	defer file.Close()

	opts := []apiclient.UploadOption{apiclient.WithProgress(s.d.UploadProgress)}
	if expiryDate != "" {
		if _, err := time.Parse(time.DateOnly, expiryDate); err != nil {
			return result{}, &apiclient.ValidationError{Field: "expiryDate", Message: "must be YYYY-MM-DD"}
		}
		opts = append(opts, apiclient.WithFields(map[string]any{"expiryDate": expiryDate}))
	}

	name := filepath.Base(path)
	resp, err := s.svc.Vehicles.UploadDocument(ctx, vehicleID, docType, apiclient.FileUpload{
		FileName:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Content:     file,
	}, opts...)
	if err != nil {
		return result{}, err
	}

	return result{value: resp.Data, summary: "Uploaded " + name}, nil
}
