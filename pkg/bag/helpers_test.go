package bag

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// identityCodec passes data through under a custom name.
type identityCodec struct {
	name string
}

func (c identityCodec) Name() string { return c.name }

func (c identityCodec) Decompress(src []byte, size int) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (c identityCodec) Compress(src []byte) ([]byte, error) { return src, nil }

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
