package model

// Features is the fixed questionnaire schema sent to /predict.
// Pointer fields let validation tell a missing field from a zero value.
// JSON names are the ones the web client sends.
type Features struct {
	Gender *int     `json:"jenis_kelamin" validate:"required"`
	Age    *int     `json:"umur" validate:"required"`
	Grade  *int     `json:"tingkatan_kelas" validate:"required"`
	Score  *float64 `json:"nilai" validate:"required"`
	Q1     *int     `json:"q1" validate:"required"`
	Q2     *int     `json:"q2" validate:"required"`
	Q3     *int     `json:"q3" validate:"required"`
	Q4     *int     `json:"q4" validate:"required"`
	Q5     *int     `json:"q5" validate:"required"`
	Q6     *int     `json:"q6" validate:"required"`
	Q7     *int     `json:"q7" validate:"required"`
	Q8     *int     `json:"q8" validate:"required"`
	Q9     *int     `json:"q9" validate:"required"`
}

// FeatureCount is the length of the vector produced by Vector.
const FeatureCount = 13

// Vector returns the features in classifier order. Missing fields read as zero;
// callers validate presence first.
func (f Features) Vector() []float64 {
	ints := []*int{f.Gender, f.Age, f.Grade}
	out := make([]float64, 0, FeatureCount)
	for _, v := range ints {
		out = append(out, intOrZero(v))
	}
	if f.Score != nil {
		out = append(out, *f.Score)
	} else {
		out = append(out, 0)
	}
	for _, v := range []*int{f.Q1, f.Q2, f.Q3, f.Q4, f.Q5, f.Q6, f.Q7, f.Q8, f.Q9} {
		out = append(out, intOrZero(v))
	}
	return out
}

func intOrZero(v *int) float64 {
	if v == nil {
		return 0
	}
	return float64(*v)
}
