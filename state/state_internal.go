package state

import (
	"fmt"
	"math"
)

var nan = math.NaN()

func throwf(format string, a ...interface{}) {
	panic(fmt.Sprintf(format, a...))
}
