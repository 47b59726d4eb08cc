package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/internal/geo"
	"github.com/velobank/fraudwatch/pkg/models"
)

// GeoDistanceConfig holds per-pair distance thresholds. Cross-border distance
// between sender and receiver is inherently more suspicious than a
// single-party location anomaly, so each pair carries its own threshold.
type GeoDistanceConfig struct {
	SenderTxKm       float64 `mapstructure:"sender_tx_km"`
	ReceiverTxKm     float64 `mapstructure:"receiver_tx_km"`
	SenderReceiverKm float64 `mapstructure:"sender_receiver_km"`
}

// DefaultGeoDistanceConfig returns the standard pairwise thresholds.
func DefaultGeoDistanceConfig() GeoDistanceConfig {
	return GeoDistanceConfig{
		SenderTxKm:       500.0,
		ReceiverTxKm:     800.0,
		SenderReceiverKm: 2000.0,
	}
}

// GeoDistanceDetector geocodes the transaction location and both parties'
// home regions and raises an independent behaviour for each pairwise distance
// that exceeds its threshold. Missing geocode data for either end of a pair
// short-circuits that pair only; partial results are still valid.
type GeoDistanceDetector struct {
	cfg      GeoDistanceConfig
	geocoder geo.Geocoder
	logger   *zap.SugaredLogger
}

// NewGeoDistanceDetector creates the geo-distance detector.
func NewGeoDistanceDetector(cfg GeoDistanceConfig, geocoder geo.Geocoder, logger *zap.SugaredLogger) *GeoDistanceDetector {
	return &GeoDistanceDetector{cfg: cfg, geocoder: geocoder, logger: logger}
}

func (d *GeoDistanceDetector) Name() string { return "geo_distance" }

func (d *GeoDistanceDetector) Validate(ctx context.Context, snap *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error) {
	tx := d.resolve(ctx, snap.Request.Location)
	sender := d.resolve(ctx, snap.Sender.BranchRegion)
	receiver := d.resolve(ctx, snap.Receiver.BranchRegion)

	var behaviours []models.SuspiciousBehaviour

	if tx != nil && sender != nil {
		if distance := geo.DistanceKm(*sender, *tx); distance > d.cfg.SenderTxKm {
			behaviours = append(behaviours, behavior.New(
				behavior.KindTxFarFromSender,
				distance/d.cfg.SenderTxKm,
				3,
				map[string]interface{}{
					"distance_km": distance,
					"location":    snap.Request.Location,
					"region":      snap.Sender.BranchRegion,
				}))
		}
	}

	if tx != nil && receiver != nil {
		if distance := geo.DistanceKm(*receiver, *tx); distance > d.cfg.ReceiverTxKm {
			behaviours = append(behaviours, behavior.New(
				behavior.KindTxFarFromReceiver,
				distance/d.cfg.ReceiverTxKm,
				3,
				map[string]interface{}{
					"distance_km": distance,
					"location":    snap.Request.Location,
					"region":      snap.Receiver.BranchRegion,
				}))
		}
	}

	if sender != nil && receiver != nil {
		if distance := geo.DistanceKm(*sender, *receiver); distance > d.cfg.SenderReceiverKm {
			behaviours = append(behaviours, behavior.New(
				behavior.KindSenderReceiverFarApart,
				distance/d.cfg.SenderReceiverKm,
				4,
				map[string]interface{}{
					"distance_km":     distance,
					"sender_region":   snap.Sender.BranchRegion,
					"receiver_region": snap.Receiver.BranchRegion,
				}))
		}
	}

	return behaviours, nil
}

// resolve geocodes a location, returning nil on any failure so the pairwise
// checks involving it are skipped without affecting the others.
func (d *GeoDistanceDetector) resolve(ctx context.Context, location string) *geo.Point {
	if location == "" {
		return nil
	}
	p, err := d.geocoder.Geocode(ctx, location)
	if err != nil {
		d.logger.Debugw("geocode unavailable, skipping pairwise checks",
			"location", location, "error", err)
		return nil
	}
	return &p
}
