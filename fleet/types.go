// Package fleet holds the wire types shared by the fleet API services.
package fleet

import "github.com/avl-fleet/fleetctl/apiclient"

type UserRole string

const (
	RoleSuperAdmin   UserRole = "SUPER_ADMIN"
	RoleCompanyAdmin UserRole = "COMPANY_ADMIN"
	RoleFleetManager UserRole = "FLEET_MANAGER"
	RoleDriver       UserRole = "DRIVER"
	RoleViewer       UserRole = "VIEWER"
)

type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserInactive  UserStatus = "INACTIVE"
	UserLocked    UserStatus = "LOCKED"
	UserSuspended UserStatus = "SUSPENDED"
)

type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "ACTIVE"
	CompanyInactive  CompanyStatus = "INACTIVE"
	CompanySuspended CompanyStatus = "SUSPENDED"
	CompanyTrial     CompanyStatus = "TRIAL"
)

type VehicleType string

const (
	VehicleCar        VehicleType = "CAR"
	VehicleTruck      VehicleType = "TRUCK"
	VehicleBus        VehicleType = "BUS"
	VehicleMotorcycle VehicleType = "MOTORCYCLE"
	VehicleVan        VehicleType = "VAN"
)

type VehicleStatus string

const (
	VehicleActive       VehicleStatus = "ACTIVE"
	VehicleInactive     VehicleStatus = "INACTIVE"
	VehicleMaintenance  VehicleStatus = "MAINTENANCE"
	VehicleOutOfService VehicleStatus = "OUT_OF_SERVICE"
)

type FuelType string

const (
	FuelPetrol   FuelType = "PETROL"
	FuelDiesel   FuelType = "DIESEL"
	FuelElectric FuelType = "ELECTRIC"
	FuelHybrid   FuelType = "HYBRID"
	FuelCNG      FuelType = "CNG"
)

// Fields is a partial resource for create and update calls.
type Fields = map[string]any

// Timestamps are kept as the server's ISO-8601 strings.

type User struct {
	ID           string     `json:"id" yaml:"id"`
	Email        string     `json:"email" yaml:"email"`
	FirstName    string     `json:"firstName" yaml:"firstName"`
	LastName     string     `json:"lastName" yaml:"lastName"`
	Phone        string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role         UserRole   `json:"role" yaml:"role"`
	Status       UserStatus `json:"status" yaml:"status"`
	CompanyID    string     `json:"companyId" yaml:"companyId"`
	ProfileImage string     `json:"profileImage,omitempty" yaml:"profileImage,omitempty"`
	LastLogin    string     `json:"lastLogin,omitempty" yaml:"lastLogin,omitempty"`
	CreatedAt    string     `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt    string     `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type LoginResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type Address struct {
	Street  string `json:"street" yaml:"street"`
	City    string `json:"city" yaml:"city"`
	State   string `json:"state" yaml:"state"`
	Country string `json:"country" yaml:"country"`
	ZipCode string `json:"zipCode" yaml:"zipCode"`
}

type Subscription struct {
	PlanID      string `json:"planId" yaml:"planId"`
	PlanName    string `json:"planName" yaml:"planName"`
	MaxUsers    int    `json:"maxUsers" yaml:"maxUsers"`
	MaxVehicles int    `json:"maxVehicles" yaml:"maxVehicles"`
	StartDate   string `json:"startDate" yaml:"startDate"`
	EndDate     string `json:"endDate" yaml:"endDate"`
	AutoRenew   bool   `json:"autoRenew" yaml:"autoRenew"`
}

type NotificationSettings struct {
	Email  bool     `json:"email" yaml:"email"`
	SMS    bool     `json:"sms" yaml:"sms"`
	Push   bool     `json:"push" yaml:"push"`
	Alerts []string `json:"alerts" yaml:"alerts"`
}

type WhiteLabelSettings struct {
	PrimaryColor   string `json:"primaryColor" yaml:"primaryColor"`
	SecondaryColor string `json:"secondaryColor" yaml:"secondaryColor"`
	Logo           string `json:"logo" yaml:"logo"`
	Favicon        string `json:"favicon" yaml:"favicon"`
	CompanyName    string `json:"companyName" yaml:"companyName"`
}

type CompanySettings struct {
	TimeZone      string               `json:"timeZone" yaml:"timeZone"`
	Currency      string               `json:"currency" yaml:"currency"`
	DateFormat    string               `json:"dateFormat" yaml:"dateFormat"`
	Theme         string               `json:"theme" yaml:"theme"`
	Notifications NotificationSettings `json:"notifications" yaml:"notifications"`
	WhiteLabel    *WhiteLabelSettings  `json:"whiteLabel,omitempty" yaml:"whiteLabel,omitempty"`
}

type Company struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Email        string          `json:"email" yaml:"email"`
	Phone        string          `json:"phone" yaml:"phone"`
	Address      Address         `json:"address" yaml:"address"`
	Website      string          `json:"website,omitempty" yaml:"website,omitempty"`
	Logo         string          `json:"logo,omitempty" yaml:"logo,omitempty"`
	Status       CompanyStatus   `json:"status" yaml:"status"`
	Subscription Subscription    `json:"subscription" yaml:"subscription"`
	Settings     CompanySettings `json:"settings" yaml:"settings"`
	CreatedAt    string          `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

type InsuranceInfo struct {
	Provider       string  `json:"provider" yaml:"provider"`
	PolicyNumber   string  `json:"policyNumber" yaml:"policyNumber"`
	ExpiryDate     string  `json:"expiryDate" yaml:"expiryDate"`
	CoverageAmount float64 `json:"coverageAmount" yaml:"coverageAmount"`
}

type VehicleDocument struct {
	ID         string `json:"id" yaml:"id"`
	Type       string `json:"type" yaml:"type"`
	Name       string `json:"name" yaml:"name"`
	URL        string `json:"url" yaml:"url"`
	ExpiryDate string `json:"expiryDate,omitempty" yaml:"expiryDate,omitempty"`
	UploadedAt string `json:"uploadedAt" yaml:"uploadedAt"`
}

type Vehicle struct {
	ID                 string            `json:"id" yaml:"id"`
	RegistrationNumber string            `json:"registrationNumber" yaml:"registrationNumber"`
	Make               string            `json:"make" yaml:"make"`
	Model              string            `json:"model" yaml:"model"`
	Year               int               `json:"year" yaml:"year"`
	VIN                string            `json:"vin,omitempty" yaml:"vin,omitempty"`
	Type               VehicleType       `json:"type" yaml:"type"`
	Status             VehicleStatus     `json:"status" yaml:"status"`
	CompanyID          string            `json:"companyId" yaml:"companyId"`
	DeviceID           string            `json:"deviceId,omitempty" yaml:"deviceId,omitempty"`
	DriverID           string            `json:"driverId,omitempty" yaml:"driverId,omitempty"`
	FuelType           FuelType          `json:"fuelType" yaml:"fuelType"`
	Capacity           float64           `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Mileage            float64           `json:"mileage,omitempty" yaml:"mileage,omitempty"`
	LastServiceDate    string            `json:"lastServiceDate,omitempty" yaml:"lastServiceDate,omitempty"`
	NextServiceDate    string            `json:"nextServiceDate,omitempty" yaml:"nextServiceDate,omitempty"`
	Insurance          InsuranceInfo     `json:"insurance" yaml:"insurance"`
	Documents          []VehicleDocument `json:"documents,omitempty" yaml:"documents,omitempty"`
	CreatedAt          string            `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt          string            `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Page is the items+meta shape list endpoints return inside "data".
type Page[T any] struct {
	Items []T            `json:"items" yaml:"items"`
	Meta  apiclient.Meta `json:"meta" yaml:"meta"`
}

// FileURL is returned by image and logo uploads.
type FileURL struct {
	URL string `json:"url" yaml:"url"`
}

type BulkCreateResult struct {
	Created int      `json:"created" yaml:"created"`
	Failed  int      `json:"failed" yaml:"failed"`
	Errors  []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type BulkUpdateResult struct {
	Updated int `json:"updated" yaml:"updated"`
	Failed  int `json:"failed" yaml:"failed"`
}

type BulkDeleteResult struct {
	Deleted int `json:"deleted" yaml:"deleted"`
	Failed  int `json:"failed" yaml:"failed"`
}

// UserUpdate is one entry of a bulk update.
type UserUpdate struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}
