package risk

import (
	"math"
	"time"
)

// Contribution - вклад одного отчета в счет ячейки
type Contribution struct {
	Weight float64
	At     time.Time
}

// Decay возвращает вес, уменьшенный экспоненциально с периодом полураспада halfLife.
// Отчеты с временем в будущем (рассинхрон часов) считаются только что созданными.
func Decay(weight float64, age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return weight * math.Exp(-math.Ln2*age.Seconds()/halfLife.Seconds())
}

// Score считает Σ weight·exp(-ln2·(at - c.At)/halfLife). Порядок суммирования задает вызывающий.
func Score(contribs []Contribution, at time.Time, halfLife time.Duration) float64 {
	var total float64
	for _, c := range contribs {
		if c.Weight <= 0 {
			continue
		}
		total += Decay(c.Weight, at.Sub(c.At), halfLife)
	}
	return total
}
