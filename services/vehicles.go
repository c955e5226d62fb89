package services

import (
	"context"

	"github.com/avl-fleet/fleetctl/apiclient"
	"github.com/avl-fleet/fleetctl/fleet"
)

type Vehicles struct {
	resource
}

func NewVehicles(r apiclient.Requester) *Vehicles {
	return &Vehicles{resource{r: r, base: VehiclesPath}}
}

func (s *Vehicles) List(ctx context.Context, f fleet.VehicleFilter) (*apiclient.Response[fleet.Page[fleet.Vehicle]], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return apiclient.Get[fleet.Page[fleet.Vehicle]](ctx, s.r, s.path(), apiclient.WithQuery(f.Values()))
}

func (s *Vehicles) Get(ctx context.Context, id string) (*apiclient.Response[fleet.Vehicle], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Get[fleet.Vehicle](ctx, s.r, s.path(id))
}

func (s *Vehicles) Create(ctx context.Context, vehicle any) (*apiclient.Response[fleet.Vehicle], error) {
	if err := requireBody(vehicle); err != nil {
		return nil, err
	}
	return apiclient.Post[fleet.Vehicle](ctx, s.r, s.path(), vehicle)
}

func (s *Vehicles) Update(ctx context.Context, id string, vehicle any) (*apiclient.Response[fleet.Vehicle], error) {
	if err := firstErr(fleet.RequireID("id", id), requireBody(vehicle)); err != nil {
		return nil, err
	}
	return apiclient.Put[fleet.Vehicle](ctx, s.r, s.path(id), vehicle)
}

func (s *Vehicles) Delete(ctx context.Context, id string) (*apiclient.Response[apiclient.Empty], error) {
	if err := fleet.RequireID("id", id); err != nil {
		return nil, err
	}
	return apiclient.Delete[apiclient.Empty](ctx, s.r, s.path(id))
}

func (s *Vehicles) AssignDevice(ctx context.Context, vehicleID, deviceID string) (*apiclient.Response[fleet.Vehicle], error) {
	if err := firstErr(fleet.RequireID("vehicleId", vehicleID), fleet.RequireID("deviceId", deviceID)); err != nil {
		return nil, err
	}
	return apiclient.Post[fleet.Vehicle](ctx, s.r, s.path(vehicleID, "device"), map[string]string{"deviceId": deviceID})
}

func (s *Vehicles) UnassignDevice(ctx context.Context, vehicleID string) (*apiclient.Response[fleet.Vehicle], error) {
	if err := fleet.RequireID("vehicleId", vehicleID); err != nil {
		return nil, err
	}
	return apiclient.Delete[fleet.Vehicle](ctx, s.r, s.path(vehicleID, "device"))
}

func (s *Vehicles) AssignDriver(ctx context.Context, vehicleID, driverID string) (*apiclient.Response[fleet.Vehicle], error) {
	if err := firstErr(fleet.RequireID("vehicleId", vehicleID), fleet.RequireID("driverId", driverID)); err != nil {
		return nil, err
	}
	return apiclient.Post[fleet.Vehicle](ctx, s.r, s.path(vehicleID, "driver"), map[string]string{"driverId": driverID})
}

func (s *Vehicles) UnassignDriver(ctx context.Context, vehicleID string) (*apiclient.Response[fleet.Vehicle], error) {
	if err := fleet.RequireID("vehicleId", vehicleID); err != nil {
		return nil, err
	}
	return apiclient.Delete[fleet.Vehicle](ctx, s.r, s.path(vehicleID, "driver"))
}

// UploadDocument sends file with its document type (e.g. "insurance",
// "registration") as the "type" form field.
func (s *Vehicles) UploadDocument(ctx context.Context, vehicleID, docType string, file apiclient.FileUpload, opts ...apiclient.UploadOption) (*apiclient.Response[fleet.VehicleDocument], error) {
	if err := fleet.RequireID("vehicleId", vehicleID); err != nil {
		return nil, err
	}
	if docType == "" {
		return nil, &apiclient.ValidationError{Field: "type", Message: "is required"}
	}
	opts = append(opts, apiclient.WithFields(map[string]any{"type": docType}))
	return apiclient.UploadAs[fleet.VehicleDocument](ctx, s.r, s.path(vehicleID, "documents"), file, opts...)
}

func (s *Vehicles) Documents(ctx context.Context, vehicleID string) (*apiclient.Response[[]fleet.VehicleDocument], error) {
	if err := fleet.RequireID("vehicleId", vehicleID); err != nil {
		return nil, err
	}
	return apiclient.Get[[]fleet.VehicleDocument](ctx, s.r, s.path(vehicleID, "documents"))
}

func (s *Vehicles) DeleteDocument(ctx context.Context, vehicleID, documentID string) (*apiclient.Response[apiclient.Empty], error) {
	if err := firstErr(fleet.RequireID("vehicleId", vehicleID), fleet.RequireID("documentId", documentID)); err != nil {
		return nil, err
	}
	return apiclient.Delete[apiclient.Empty](ctx, s.r, s.path(vehicleID, "documents", documentID))
}
