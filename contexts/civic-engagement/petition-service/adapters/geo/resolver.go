package geo

import (
	"fmt"
	"os"
	"strings"

	"petitionhub/contexts/civic-engagement/petition-service/ports"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const (
	DefaultNameProperty  = "SIG_KOR_NM"
	fallbackNameProperty = "name"
)

type district struct {
	name     string
	bound    orb.Bound
	geometry orb.Geometry
}

// Resolver maps a coordinate to the first district, in dataset order, whose
// polygon contains it. Holes are respected.
type Resolver struct {
	districts []district
}

var _ ports.RegionResolver = (*Resolver)(nil)

func LoadFile(path string, nameProperty string) (*Resolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read district dataset: %w", err)
	}
	return Parse(raw, nameProperty)
}

// Parse builds a resolver from a GeoJSON FeatureCollection. Features that are
// not Polygon or MultiPolygon, or that have no name, are skipped.
func Parse(raw []byte, nameProperty string) (*Resolver, error) {
	collection, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode district dataset: %w", err)
	}
	if strings.TrimSpace(nameProperty) == "" {
		nameProperty = DefaultNameProperty
	}

	resolver := &Resolver{}
	for _, feature := range collection.Features {
		switch feature.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		name := strings.TrimSpace(feature.Properties.MustString(nameProperty, ""))
		if name == "" {
			name = strings.TrimSpace(feature.Properties.MustString(fallbackNameProperty, ""))
		}
		if name == "" {
			continue
		}
		resolver.districts = append(resolver.districts, district{
			name:     name,
			bound:    feature.Geometry.Bound(),
			geometry: feature.Geometry,
		})
	}
	return resolver, nil
}

func (r *Resolver) ResolveRegion(lat float64, lng float64) (string, bool) {
	if r == nil {
		return "", false
	}
	point := orb.Point{lng, lat}
	for _, d := range r.districts {
		if !d.bound.Contains(point) {
			continue
		}
		switch geometry := d.geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(geometry, point) {
				return d.name, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(geometry, point) {
				return d.name, true
			}
		}
	}
	return "", false
}

func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.districts)
}
