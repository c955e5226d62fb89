package fleet

import (
	"regexp"
	"slices"
	"strings"

	"github.com/avl-fleet/fleetctl/apiclient"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidPhone accepts an optional leading + and up to 16 digits, ignoring
// spaces, dashes and parentheses.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phoneNoise.Replace(phone))
}

// Validate rejects requests the server would refuse anyway.
func (r LoginRequest) Validate() error {
	if !IsValidEmail(r.Email) {
		return &apiclient.ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if r.Password == "" {
		return &apiclient.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

func (r ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" {
		return &apiclient.ValidationError{Field: "currentPassword", Message: "is required"}
	}
	if r.NewPassword == "" {
		return &apiclient.ValidationError{Field: "newPassword", Message: "is required"}
	}
	if r.NewPassword == r.CurrentPassword {
		return &apiclient.ValidationError{Field: "newPassword", Message: "must differ from the current password"}
	}
	return nil
}

// RequireID returns a ValidationError naming field when id is blank.
func RequireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &apiclient.ValidationError{Field: field, Message: "is required"}
	}
	if strings.ContainsAny(id, "/?#") {
		return &apiclient.ValidationError{Field: field, Message: "must not contain '/', '?' or '#'"}
	}
	return nil
}

var (
	userRoles    = []UserRole{RoleSuperAdmin, RoleCompanyAdmin, RoleFleetManager, RoleDriver, RoleViewer}
	vehicleTypes = []VehicleType{VehicleCar, VehicleTruck, VehicleBus, VehicleMotorcycle, VehicleVan}
)

func (r UserRole) Valid() bool {
	return slices.Contains(userRoles, r)
}

func (t VehicleType) Valid() bool {
	return slices.Contains(vehicleTypes, t)
}

// Validate checks the filter's enum fields; zero values mean "any".
func (f UserFilter) Validate() error {
	if f.Role != "" && !f.Role.Valid() {
		return &apiclient.ValidationError{Field: "role", Message: "unknown role " + string(f.Role)}
	}
	return nil
}

func (f VehicleFilter) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return &apiclient.ValidationError{Field: "type", Message: "unknown vehicle type " + string(f.Type)}
	}
	return nil
}
