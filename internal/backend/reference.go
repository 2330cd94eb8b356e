package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
)

// decodeList accepts a bare JSON array or an object wrapping the array under
// one of keys.
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []T
	if raw[0] == '[' {
		err := json.Unmarshal(raw, &out)
		return out, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for _, k := range append(keys, "data", "items") {
		if v, ok := obj[k]; ok {
			err := json.Unmarshal(v, &out)
			return out, err
		}
	}
	return nil, fmt.Errorf("no list under %v", keys)
}

func decodeFailure(op string, err error) error {
	return fault.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
}

func (c *Client) ListRoutes(ctx context.Context) ([]models.Route, error) {
	routes, err := cached(c, cacheKey("routes"), func() ([]models.Route, error) {
		var raw json.RawMessage
		if err := c.do(ctx, request{op: "list_routes", method: http.MethodGet, path: "/routes"}, &raw); err != nil {
			return nil, err
		}
		wires, err := decodeList[routeWire](raw, "routes")
		if err != nil {
			return nil, decodeFailure("list_routes", err)
		}
		out := make([]models.Route, len(wires))
		for i, w := range wires {
			out[i] = w.model()
		}
		return out, nil
	})
	return slices.Clone(routes), err
}

func (c *Client) GetRoute(ctx context.Context, routeID int) (models.Route, error) {
	return cached(c, cacheKey("route", routeID), func() (models.Route, error) {
		var w routeWire
		path := "/routes/" + strconv.Itoa(routeID)
		if err := c.do(ctx, request{op: "get_route", method: http.MethodGet, path: path}, &w); err != nil {
			return models.Route{}, err
		}
		return w.model(), nil
	})
}

func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	vehicles, err := cached(c, cacheKey("vehicles"), func() ([]models.Vehicle, error) {
		var raw json.RawMessage
		if err := c.do(ctx, request{op: "list_vehicles", method: http.MethodGet, path: "/vehicles"}, &raw); err != nil {
			return nil, err
		}
		out, err := decodeList[models.Vehicle](raw, "vehicles")
		if err != nil {
			return nil, decodeFailure("list_vehicles", err)
		}
		return out, nil
	})
	return slices.Clone(vehicles), err
}

func (c *Client) GetVehicle(ctx context.Context, vehicleID int) (models.Vehicle, error) {
	return cached(c, cacheKey("vehicle", vehicleID), func() (models.Vehicle, error) {
		var v models.Vehicle
		path := "/vehicles/" + strconv.Itoa(vehicleID)
		if err := c.do(ctx, request{op: "get_vehicle", method: http.MethodGet, path: path}, &v); err != nil {
			return models.Vehicle{}, err
		}
		return v, nil
	})
}

// VehicleForDriver resolves the vehicle assigned to a driver.
func (c *Client) VehicleForDriver(ctx context.Context, userID int) (models.Vehicle, error) {
	var raw json.RawMessage
	q := url.Values{"user_id": {strconv.Itoa(userID)}}
	if err := c.do(ctx, request{op: "vehicle_for_driver", method: http.MethodGet, path: "/vehicles", query: q}, &raw); err != nil {
		return models.Vehicle{}, err
	}
	vehicles, err := decodeList[models.Vehicle](raw, "vehicles")
	if err != nil {
		return models.Vehicle{}, decodeFailure("vehicle_for_driver", err)
	}
	if len(vehicles) == 0 {
		return models.Vehicle{}, fault.InputError{Field: "user_id", Reason: "no vehicle assigned"}
	}
	return vehicles[0], nil
}

func (c *Client) listLocations(ctx context.Context, op, path string, q url.Values) ([]models.Location, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{op: op, method: http.MethodGet, path: path, query: q}, &raw); err != nil {
		return nil, err
	}
	wires, err := decodeList[locationWire](raw, "pickup_locations", "school_locations", "locations")
	if err != nil {
		return nil, decodeFailure(op, err)
	}
	out := make([]models.Location, len(wires))
	for i, w := range wires {
		out[i] = w.model()
	}
	return out, nil
}

// ListPickupLocations lists pickup points, optionally for one route (routeID > 0).
func (c *Client) ListPickupLocations(ctx context.Context, routeID int) ([]models.Location, error) {
	locations, err := cached(c, cacheKey("pickup_locations", routeID), func() ([]models.Location, error) {
		var q url.Values
		if routeID > 0 {
			q = url.Values{"route_id": {strconv.Itoa(routeID)}}
		}
		return c.listLocations(ctx, "list_pickup_locations", "/pickup_locations", q)
	})
	return slices.Clone(locations), err
}

func (c *Client) ListSchoolLocations(ctx context.Context) ([]models.Location, error) {
	locations, err := cached(c, cacheKey("school_locations"), func() ([]models.Location, error) {
		return c.listLocations(ctx, "list_school_locations", "/school-locations/all", nil)
	})
	return slices.Clone(locations), err
}
