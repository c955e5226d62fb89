package fleet

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avl-fleet/fleetctl/apiclient"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "driver.one@fleet.example.com", "x+tag@y.io"}
	invalid := []string{"", "plain", "a@b", "a @b.co", "@b.co", "a@.co "}

	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+1 (555) 010-2030", true},
		{"5550102030", true},
		{"+49-30-1234567", true},
		{"0555", false},
		{"+", false},
		{"12345678901234567", false},
		{"555-CALL-NOW", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidPhone(tt.phone), tt.phone)
	}
}

func TestLoginRequest_Validate(t *testing.T) {
	var vErr *apiclient.ValidationError

	err := LoginRequest{Email: "not-an-email", Password: "x"}.Validate()
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Field)

	err = LoginRequest{Email: "ops@fleet.io"}.Validate()
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "password", vErr.Field)

	assert.NoError(t, LoginRequest{Email: "ops@fleet.io", Password: "secret"}.Validate())
}

func TestChangePasswordRequest_Validate(t *testing.T) {
	assert.Error(t, ChangePasswordRequest{NewPassword: "b"}.Validate())
	assert.Error(t, ChangePasswordRequest{CurrentPassword: "a"}.Validate())
	assert.Error(t, ChangePasswordRequest{CurrentPassword: "a", NewPassword: "a"}.Validate())
	assert.NoError(t, ChangePasswordRequest{CurrentPassword: "a", NewPassword: "b"}.Validate())
}

func TestRequireID(t *testing.T) {
	assert.NoError(t, RequireID("id", "veh-42"))
	assert.Error(t, RequireID("id", "  "))
	assert.Error(t, RequireID("id", "../admin"))
}

func TestFilterValues(t *testing.T) {
	v := VehicleFilter{
		ListParams: ListParams{Page: 2, Limit: 25, Search: "volvo"},
		Type:       VehicleTruck,
		CompanyID:  "c1",
	}.Values()
	assert.Equal(t, url.Values{
		"page":      {"2"},
		"limit":     {"25"},
		"search":    {"volvo"},
		"type":      {"TRUCK"},
		"companyId": {"c1"},
	}, v)

	assert.Empty(t, UserFilter{}.Values())
	assert.Equal(t, "status=TRIAL", CompanyFilter{Status: CompanyTrial}.Values().Encode())
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, UserFilter{Role: RoleDriver}.Validate())
	assert.Error(t, UserFilter{Role: "PILOT"}.Validate())
	assert.NoError(t, VehicleFilter{}.Validate())
	assert.Error(t, VehicleFilter{Type: "BOAT"}.Validate())
}

func TestPage_Decode(t *testing.T) {
	body := `{"items":[{"id":"v1","registrationNumber":"KA-01","type":"TRUCK","fuelType":"DIESEL","insurance":{"provider":"Acme"}}],
		"meta":{"page":1,"limit":20,"total":1,"totalPages":1,"hasNext":false,"hasPrev":false}}`

	var page Page[Vehicle]
	require.NoError(t, json.Unmarshal([]byte(body), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, VehicleTruck, page.Items[0].Type)
	assert.Equal(t, "Acme", page.Items[0].Insurance.Provider)
	assert.Equal(t, 1, page.Meta.Total)
}

func TestUser_FullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada", User{FirstName: "Ada"}.FullName())
	assert.Equal(t, "Lovelace", User{LastName: "Lovelace"}.FullName())
}
