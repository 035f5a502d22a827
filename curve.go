package rawaccel

import "math"

// Sensitivity evaluates the curve selected by mode at the given speed
// (counts/ms) and returns the multiplier to apply to the displacement.
//
// The gain modes (NaturalGain, SigmoidGain) are defined by their gain
// (the derivative of output speed); what is returned is the equivalent
// sensitivity, i.e. the integral of the gain divided by the speed.
func Sensitivity(mode Mode, args AccelArgs, speed float64) float64 {
	if speed < 0 || math.IsNaN(speed) {
		speed = 0
	}
	d := speed - math.Max(args.Offset, 0)
	if d < 0 {
		d = 0
	}

	var s float64
	switch mode {
	case ModeLinear:
		s = 1 + args.Weight*args.Accel*d
	case ModeClassic:
		if d == 0 {
			s = 1
			break
		}
		s = 1 + args.Weight*math.Pow(args.Accel*d, args.Exponent-1)
	case ModeNatural:
		if args.Accel <= 0 {
			s = 1
			break
		}
		s = 1 + args.Weight*(args.Limit-1)*(1-math.Exp(-args.Accel*d))
	case ModePower:
		s = args.Weight * math.Pow(args.PowerScale*speed, args.Exponent)
	case ModeNaturalGain:
		if args.Accel <= 0 || d == 0 {
			s = 1
			break
		}
		integral := d - (1-math.Exp(-args.Accel*d))/args.Accel
		s = 1 + (args.Limit-1)*integral/speed
	case ModeSigmoidGain:
		if args.Accel <= 0 || d == 0 {
			s = 1
			break
		}
		a, m := args.Accel, args.Midpoint
		integral := (softplus(a*(d-m)) - softplus(-a*m)) / a
		s = 1 + (args.Limit-1)*integral/speed
	default:
		return 1
	}

	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 1
	}
	if s < 0 {
		s = 0
	}
	if args.ScaleCap > 0 && s > args.ScaleCap {
		s = args.ScaleCap
	}
	return s
}

// softplus is log(1+e^x) without overflow for large x.
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}
