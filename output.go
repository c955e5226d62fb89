package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"gopkg.in/yaml.v3"

	"github.com/avl-fleet/fleetctl/apiclient"
	"github.com/avl-fleet/fleetctl/fleet"
)

// Output formats accepted by -o.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// statusView is what `fleetctl status` reports.
type statusView struct {
	Env           string      `json:"env" yaml:"env"`
	BaseURL       string      `json:"baseUrl" yaml:"baseUrl"`
	Profile       string      `json:"profile" yaml:"profile"`
	Authenticated bool        `json:"authenticated" yaml:"authenticated"`
	ExpiresAt     *time.Time  `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	User          *fleet.User `json:"user,omitempty" yaml:"user,omitempty"`
}

func validFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return &apiclient.ValidationError{Field: "output", Message: "must be one of table, json, yaml"}
	}
}

// render writes v to w in the given format.
func render(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderTable(w, v)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// newTable returns a borderless table with bold headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func renderTable(w io.Writer, v any) error {
	var (
		t    *table.Table
		meta *apiclient.Meta
		n    int
	)

	switch v := v.(type) {
	case fleet.Page[fleet.User]:
		t, meta, n = userTable(v.Items...), &v.Meta, len(v.Items)
	case fleet.User:
		t = userTable(v)
	case fleet.Page[fleet.Company]:
		t, meta, n = companyTable(v.Items...), &v.Meta, len(v.Items)
	case fleet.Company:
		t = companyTable(v)
	case fleet.Page[fleet.Vehicle]:
		t, meta, n = vehicleTable(v.Items...), &v.Meta, len(v.Items)
	case fleet.Vehicle:
		t = vehicleTable(v)
	case []fleet.VehicleDocument:
		t = documentTable(v...)
	case fleet.VehicleDocument:
		t = documentTable(v)
	case statusView:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		statusRows(tw, v)
		return tw.Flush()
	default:
		// Nothing tabular; fall back to YAML.
		return render(w, formatYAML, v)
	}

	if _, err := lipgloss.Fprintln(w, t); err != nil {
		return err
	}
	if meta != nil {
		pageFooter(w, *meta, n)
	}
	return nil
}

func userTable(users ...fleet.User) *table.Table {
	t := newTable("ID", "NAME", "EMAIL", "ROLE", "STATUS", "COMPANY")
	for _, u := range users {
		t.Row(u.ID, dash(u.FullName()), u.Email, string(u.Role), string(u.Status), dash(u.CompanyID))
	}
	return t
}

func companyTable(companies ...fleet.Company) *table.Table {
	t := newTable("ID", "NAME", "EMAIL", "STATUS", "PLAN")
	for _, c := range companies {
		t.Row(c.ID, c.Name, dash(c.Email), string(c.Status), dash(c.Subscription.PlanName))
	}
	return t
}

func vehicleTable(vehicles ...fleet.Vehicle) *table.Table {
	t := newTable("ID", "REGISTRATION", "VEHICLE", "TYPE", "STATUS", "DEVICE", "DRIVER")
	for _, v := range vehicles {
		name := strings.TrimSpace(fmt.Sprintf("%s %s", v.Make, v.Model))
		if v.Year > 0 {
			name = fmt.Sprintf("%s (%d)", name, v.Year)
		}
		t.Row(v.ID, v.RegistrationNumber, dash(name), string(v.Type), string(v.Status), dash(v.DeviceID), dash(v.DriverID))
	}
	return t
}

func documentTable(docs ...fleet.VehicleDocument) *table.Table {
	t := newTable("ID", "TYPE", "NAME", "EXPIRES", "URL")
	for _, d := range docs {
		t.Row(d.ID, d.Type, d.Name, dash(d.ExpiryDate), d.URL)
	}
	return t
}

func statusRows(w io.Writer, s statusView) {
	fmt.Fprintf(w, "Environment:\t%s\n", s.Env)
	fmt.Fprintf(w, "API:\t%s\n", s.BaseURL)
	fmt.Fprintf(w, "Profile:\t%s\n", s.Profile)
	fmt.Fprintf(w, "Authenticated:\t%t\n", s.Authenticated)
	if s.ExpiresAt != nil {
		fmt.Fprintf(w, "Token expires:\t%s\n", s.ExpiresAt.Format(time.RFC3339))
	}
	if s.User != nil {
		fmt.Fprintf(w, "User:\t%s <%s> (%s)\n", s.User.FullName(), s.User.Email, s.User.Role)
	}
}

func pageFooter(w io.Writer, m apiclient.Meta, shown int) {
	if m.TotalPages == 0 {
		return
	}
	fmt.Fprintf(w, "\nPage %d of %d (%d of %d shown)\n", m.Page, m.TotalPages, shown, m.Total)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
