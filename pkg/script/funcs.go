package script

import "math"

const kelvinOffset = 273.15

// dewpoint constants (Magnus approximation).
const dpK2 = 17.62
const dpK3 = 243.12

func heatIndex(args []float64) float64 {
	temp, hum := args[0], args[1]
	if temp < 20 {
		return math.NaN()
	}
	return -8.784695 +
		1.61139411*temp +
		2.338549*hum +
		-0.14611605*temp*hum +
		-1.2308094e-2*temp*temp +
		-1.6424828e-2*hum*hum +
		2.211732e-3*temp*temp*hum +
		7.2546e-4*hum*hum*temp +
		-3.582e-6*hum*hum*temp*temp
}

func dewpoint(args []float64) float64 {
	temp, hum := args[0], args[1]
	if hum <= 0 {
		return -kelvinOffset
	}
	h := hum / 100.0
	lnH := math.Log(h)
	return dpK3*(dpK2*temp/(dpK3+temp)+lnH) / (dpK2*dpK3/(dpK3+temp) - lnH)
}

func wetBulbTemperature(args []float64) float64 {
	temp, hum := args[0], args[1]
	return temp*math.Atan(0.151977*math.Sqrt(hum+8.313659)) +
		math.Atan(temp+hum) -
		math.Atan(hum-1.676331) +
		0.00391838*math.Pow(hum, 1.5)*math.Atan(0.023101*hum) -
		4.686035
}

// toDecibel reports the ratio of value to reference in decibels.
func toDecibel(args []float64) float64 {
	value, reference := args[0], args[1]
	return 20 * math.Log10(value/reference)
}

// barometricCorrection reduces a measured pressure to sea-level-equivalent
// pressure given temperature, humidity, local gravity and the height above
// the reference point.
func barometricCorrection(args []float64) float64 {
	pressure, temperature, humidity, g0, height := args[0], args[1], args[2], args[3], args[4]
	const pressureA = 0.0065
	const pressureC = 0.12
	const pressureRStar = 287.05

	absTemperature := temperature + kelvinOffset
	tempCoeff := 6.112 * math.Exp(dpK2*temperature/(dpK3+temperature))
	humidityNorm := humidity / 100.0
	return pressure * math.Exp(
		g0/(pressureRStar*(absTemperature+pressureC*tempCoeff*humidityNorm+pressureA*height/2.0))*height,
	)
}

type funcSpec struct {
	arity int
	call  func([]float64) float64
}

var funcTable = map[string]funcSpec{
	"heat-index":            {2, heatIndex},
	"dewpoint":              {2, dewpoint},
	"wet-bulb-temperature":  {2, wetBulbTemperature},
	"to-decibel":            {2, toDecibel},
	"barometric-correction": {5, barometricCorrection},
}
