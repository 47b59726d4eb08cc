package detector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/internal/geo"
	"github.com/velobank/fraudwatch/pkg/models"
)

// FastTravelConfig holds the impossible-travel physics thresholds.
type FastTravelConfig struct {
	LookbackCount  int           `mapstructure:"lookback_count"`
	LookbackWindow time.Duration `mapstructure:"lookback_window"`
	// ReasonableSpeedKmh is the ceiling for plausible ground travel.
	ReasonableSpeedKmh float64 `mapstructure:"reasonable_speed_kmh"`
	// FlightSpeedKmh is the commercial-flight ceiling; beyond it the travel is
	// physically impossible.
	FlightSpeedKmh float64 `mapstructure:"flight_speed_kmh"`
	// MinDistanceKm suppresses noise: comparisons below it are ignored.
	MinDistanceKm float64 `mapstructure:"min_distance_km"`
	// HomeDistanceKm applies to a first-ever transaction, compared against the
	// sender's registered branch region.
	HomeDistanceKm float64 `mapstructure:"home_distance_km"`
}

// DefaultFastTravelConfig returns the standard travel thresholds.
func DefaultFastTravelConfig() FastTravelConfig {
	return FastTravelConfig{
		LookbackCount:      5,
		LookbackWindow:     7 * 24 * time.Hour,
		ReasonableSpeedKmh: 300.0,
		FlightSpeedKmh:     900.0,
		MinDistanceKm:      50.0,
		HomeDistanceKm:     500.0,
	}
}

// FastTravelDetector derives the speed the sender would have needed to travel
// between the locations of consecutive transactions. Each historical
// comparison that trips a threshold produces its own behaviour, so a pattern
// of improbable hops scores higher than a single one.
type FastTravelDetector struct {
	cfg      FastTravelConfig
	history  HistoryStore
	geocoder geo.Geocoder
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewFastTravelDetector creates the fast-travel detector.
func NewFastTravelDetector(cfg FastTravelConfig, history HistoryStore, geocoder geo.Geocoder, logger *zap.SugaredLogger) *FastTravelDetector {
	return &FastTravelDetector{
		cfg:      cfg,
		history:  history,
		geocoder: geocoder,
		logger:   logger,
		now:      time.Now,
	}
}

func (d *FastTravelDetector) Name() string { return "fast_travel" }

func (d *FastTravelDetector) Validate(ctx context.Context, snap *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error) {
	if snap.Request.Location == "" {
		return nil, nil
	}

	here, err := d.geocoder.Geocode(ctx, snap.Request.Location)
	if err != nil {
		return nil, fmt.Errorf("geocode transaction location: %w", err)
	}

	since := d.now().Add(-d.cfg.LookbackWindow)
	history, err := d.history.RecentTransactions(ctx, snap.Request.SenderAccountID, since, d.cfg.LookbackCount+1)
	if err != nil {
		return nil, fmt.Errorf("load sender history: %w", err)
	}

	// The current transaction is already persisted as pending; only earlier
	// ones count as travel origins.
	prior := history[:0:0]
	for _, tx := range history {
		if tx.CreatedAt.Before(snap.CapturedAt) && tx.Location != "" {
			prior = append(prior, tx)
		}
	}
	if len(prior) > d.cfg.LookbackCount {
		prior = prior[:d.cfg.LookbackCount]
	}

	if len(prior) == 0 {
		return d.checkReferenceLocation(ctx, snap, here)
	}

	var behaviours []models.SuspiciousBehaviour
	for _, tx := range prior {
		there, err := d.geocoder.Geocode(ctx, tx.Location)
		if err != nil {
			d.logger.Debugw("skipping travel comparison, geocode failed",
				"location", tx.Location, "error", err)
			continue
		}

		distance := geo.DistanceKm(here, there)
		if distance < d.cfg.MinDistanceKm {
			continue
		}

		elapsedHours := snap.CapturedAt.Sub(tx.CreatedAt).Hours()
		if elapsedHours < 1.0/60 {
			elapsedHours = 1.0 / 60
		}
		requiredSpeed := distance / elapsedHours

		context := map[string]interface{}{
			"required_speed_kmh": requiredSpeed,
			"distance_km":        distance,
			"elapsed_hours":      elapsedHours,
			"previous_location":  tx.Location,
			"current_location":   snap.Request.Location,
		}

		switch {
		case requiredSpeed > d.cfg.FlightSpeedKmh:
			intensity := requiredSpeed / d.cfg.FlightSpeedKmh
			behaviours = append(behaviours, behavior.New(behavior.KindImpossibleTravel, intensity, 5, context))
		case requiredSpeed > d.cfg.ReasonableSpeedKmh:
			intensity := requiredSpeed / d.cfg.ReasonableSpeedKmh
			behaviours = append(behaviours, behavior.New(behavior.KindFastTravel, intensity, 4, context))
		}
	}
	return behaviours, nil
}

// checkReferenceLocation handles a sender with no history: the only available
// origin is the registered branch region.
func (d *FastTravelDetector) checkReferenceLocation(ctx context.Context, snap *models.TransactionSnapshot, here geo.Point) ([]models.SuspiciousBehaviour, error) {
	if snap.Sender.BranchRegion == "" {
		return nil, nil
	}
	home, err := d.geocoder.Geocode(ctx, snap.Sender.BranchRegion)
	if err != nil {
		return nil, fmt.Errorf("geocode branch region: %w", err)
	}

	distance := geo.DistanceKm(here, home)
	if distance < d.cfg.HomeDistanceKm {
		return nil, nil
	}

	intensity := distance / d.cfg.HomeDistanceKm
	return []models.SuspiciousBehaviour{
		behavior.New(behavior.KindFirstTxFarFromHome, intensity, 3, map[string]interface{}{
			"distance_km":      distance,
			"branch_region":    snap.Sender.BranchRegion,
			"current_location": snap.Request.Location,
		}),
	}, nil
}
