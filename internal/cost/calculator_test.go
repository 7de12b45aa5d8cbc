package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		"haiku":  {Input: 0.80, Output: 4.00},
		"sonnet": {Input: 3.00, Output: 15.00},
	}
}

func TestCalculator_Claude(t *testing.T) {
	c := NewCalculator(testRates())

	// 1M input + 1M output on sonnet.
	assert.InDelta(t, 18.00, c.Claude("sonnet", 1_000_000, 1_000_000), 1e-9)

	// 500k input only on haiku.
	assert.InDelta(t, 0.40, c.Claude("haiku", 500_000, 0), 1e-9)
}

func TestCalculator_UnknownModelIsFree(t *testing.T) {
	c := NewCalculator(testRates())
	assert.Equal(t, 0.0, c.Claude("unknown-model", 1_000_000, 1_000_000))
}

func TestTracker_Accumulates(t *testing.T) {
	tr := NewTracker(testRates())

	tr.Add("sonnet", 1_000_000, 0)
	tr.Add("sonnet", 0, 1_000_000)
	tr.Add("unknown", 100, 100)

	in, out, usd := tr.Totals()
	assert.Equal(t, int64(1_000_100), in)
	assert.Equal(t, int64(1_000_100), out)
	assert.InDelta(t, 18.00, usd, 1e-9)
}

func TestTracker_ConcurrentAdds(t *testing.T) {
	tr := NewTracker(testRates())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Add("haiku", 1000, 100)
		}()
	}
	wg.Wait()

	in, out, _ := tr.Totals()
	assert.Equal(t, int64(50_000), in)
	assert.Equal(t, int64(5_000), out)
}

func TestDefaultRates_CoverKnownModels(t *testing.T) {
	rates := DefaultRates()
	assert.Contains(t, rates, "claude-sonnet-4-5-20250929")
}
