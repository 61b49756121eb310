// Package config holds the estimator's tunable parameters: error-state
// convention, process-noise densities, initial covariance blocks, and
// sensor extrinsics. It follows the same load-from-JSON-with-defaulting
// shape as internal/config.TuningConfig, adapted to the estimator's
// nested (vector/matrix, not flat-scalar) parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/inekf/internal/estimator/lie"
)

// maxConfigFileSize bounds the JSON config file LoadConfig will read, the
// same safety check config.LoadTuningConfig performs.
const maxConfigFileSize = 1 * 1024 * 1024

// LLAReference is a (latitude, longitude, altitude) origin an adapter uses
// to convert absolute position fixes into the estimator's local
// tangent-plane world frame before enqueuing a PositionMeasurement.
type LLAReference struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeM    float64 `json:"altitude_m"`
}

// Extrinsic is a fixed 6-DOF transform (translation + roll/pitch/yaw) from
// the IMU frame to the body frame.
type Extrinsic struct {
	TranslationM [3]float64 `json:"translation_m"`
	RollPitchYaw [3]float64 `json:"rpy_rad"`
}

// ProcessNoise holds the continuous-time noise densities used to assemble
// Q_k during propagation.
type ProcessNoise struct {
	Gyro     float64 `json:"gyro"`
	Accel    float64 `json:"accel"`
	GyroBias float64 `json:"gyro_bias"`
	AccelBias float64 `json:"accel_bias"`
	Contact  float64 `json:"contact"`
}

// InitialCovariance holds the block-diagonal covariance the coordinator
// seeds P with on the StateInit -> Running transition.
type InitialCovariance struct {
	Rotation float64 `json:"rotation"`
	Velocity float64 `json:"velocity"`
	Position float64 `json:"position"`
	GyroBias float64 `json:"gyro_bias"`
	AccelBias float64 `json:"accel_bias"`
}

// Config is the full set of estimator configuration options enumerated in
// the estimator's external-interface contract.
type Config struct {
	ErrorType    lie.ErrorType `json:"-"`
	ErrorTypeStr string        `json:"error_type"` // "left" or "right"

	EstimateBias bool       `json:"estimate_bias"`
	Gravity      [3]float64 `json:"gravity"`

	ProcessNoise      ProcessNoise      `json:"process_noise"`
	InitialCovariance InitialCovariance `json:"initial_covariance"`

	BiasInitSampleCount int     `json:"bias_init_sample_count"`
	MaxDt               float64 `json:"max_dt"`

	// NumLimbs is the number of contact limbs every KinematicsMeasurement
	// must report; a measurement with a different number of limbs is a
	// DimensionMismatch and is refused rather than applied. Zero disables
	// the check.
	NumLimbs int `json:"num_limbs"`

	ImuToBody Extrinsic `json:"imu_to_body"`

	PositionReference *LLAReference `json:"position_reference,omitempty"`
}

// DefaultConfig returns the configuration defaults named in the
// estimator's configuration contract.
func DefaultConfig() Config {
	return Config{
		ErrorType:           lie.RightInvariant,
		ErrorTypeStr:         "right",
		EstimateBias:         true,
		Gravity:              [3]float64{0, 0, -9.81},
		BiasInitSampleCount:  250,
		MaxDt:                0.1,
		NumLimbs:             4,
		ProcessNoise: ProcessNoise{
			Gyro:      1e-4,
			Accel:     1e-3,
			GyroBias:  1e-6,
			AccelBias: 1e-6,
			Contact:   1e-3,
		},
		InitialCovariance: InitialCovariance{
			Rotation:  0.03,
			Velocity:  0.01,
			Position:  1e-5,
			GyroBias:  1e-4,
			AccelBias: 2.5e-3,
		},
	}
}

// LoadConfig reads and validates a Config from a JSON file at path, the
// same extension-and-size validation config.LoadTuningConfig performs.
// Fields omitted from the JSON retain the DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// normalize resolves ErrorTypeStr into ErrorType and validates the
// remaining fields.
func (c *Config) normalize() error {
	switch c.ErrorTypeStr {
	case "", "right":
		c.ErrorType = lie.RightInvariant
		c.ErrorTypeStr = "right"
	case "left":
		c.ErrorType = lie.LeftInvariant
	default:
		return fmt.Errorf("error_type must be \"left\" or \"right\", got %q", c.ErrorTypeStr)
	}

	if c.BiasInitSampleCount <= 0 {
		return fmt.Errorf("bias_init_sample_count must be positive, got %d", c.BiasInitSampleCount)
	}
	if c.MaxDt <= 0 {
		return fmt.Errorf("max_dt must be positive, got %f", c.MaxDt)
	}
	return nil
}
