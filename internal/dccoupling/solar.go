package dccoupling

import (
	"math"
	"time"

	"storagesim/internal/simerr"
)

// SolarConfig describes a PV array on the bus. Angles in degrees, elevation in km.
type SolarConfig struct {
	Latitude   float64 `yaml:"latitude"`
	Elevation  float64 `yaml:"elevation"`
	Tilt       float64 `yaml:"tilt"`
	Area       float64 `yaml:"area"`
	Efficiency float64 `yaml:"efficiency"`
}

func (c SolarConfig) Validate() error {
	if err := simerr.InRange("solar", "latitude", c.Latitude, -90, 90); err != nil {
		return err
	}
	if err := simerr.InRange("solar", "tilt", c.Tilt, 0, 90); err != nil {
		return err
	}
	if err := simerr.NonNegative("solar", "elevation", c.Elevation); err != nil {
		return err
	}
	if err := simerr.Positive("solar", "area", c.Area); err != nil {
		return err
	}
	return simerr.InRange("solar", "efficiency", c.Efficiency, 0, 1)
}

// SolarGeneration is a clear-sky south-facing array.
type SolarGeneration struct {
	cfg            SolarConfig
	latitude, tilt float64
}

func NewSolarGeneration(cfg SolarConfig) (*SolarGeneration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SolarGeneration{cfg: cfg, latitude: radians(cfg.Latitude), tilt: radians(cfg.Tilt)}, nil
}

func (s *SolarGeneration) GenerationPower(t time.Time) (float64, error) {
	return Irradiance(s.latitude, s.cfg.Elevation, s.tilt, t) * s.cfg.Area * s.cfg.Efficiency, nil
}

func (s *SolarGeneration) Validate(int) error { return nil }

func radians(deg float64) float64 { return deg * math.Pi / 180 }

const solarConstant = 1353 // W/m²

// Irradiance returns the clear-sky irradiance in W/m² on a surface tilted
// towards the equator. latitude and tilt in radians, elevation in km.
func Irradiance(latitude, elevation, tilt float64, t time.Time) float64 {
	elev := elevationAngle(latitude, t)
	if elev <= 0 {
		return 0
	}
	am := 1 / math.Sin(elev)
	x := math.Pow(0.7, math.Pow(am, 0.678))
	direct := (x*(1-0.14*elevation) + 0.14*elevation) * solarConstant
	diffuse := 0.1 * direct

	angle := incidentAngle(latitude, tilt, t)
	if angle > math.Pi/2 {
		return diffuse
	}
	return direct*math.Cos(angle) + diffuse
}

func declination(t time.Time) float64 {
	return math.Asin(math.Sin(float64(t.YearDay()-81)*2*math.Pi/365.25) * math.Sin(0.40928))
}

func hourAngle(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	return radians((h - 12) * 15)
}

func elevationAngle(latitude float64, t time.Time) float64 {
	d := declination(t)
	return math.Asin(math.Sin(d)*math.Sin(latitude) + math.Cos(d)*math.Cos(latitude)*math.Cos(hourAngle(t)))
}

func incidentAngle(latitude, tilt float64, t time.Time) float64 {
	d := declination(t)
	c := math.Cos(hourAngle(t))*math.Cos(d)*math.Cos(latitude-tilt) + math.Sin(d)*math.Sin(latitude-tilt)
	return math.Acos(math.Max(-1, math.Min(1, c)))
}
