package zk

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestEstimateComplexityCostModel(t *testing.T) {
	c := &Circuit{ID: 1, MaxDataPoints: 10, MaxDataSources: 5}

	got := c.EstimateComplexity(5, 3)

	// constraints = 50 + 5*5 + 3*3 + 20 = 104
	// witnesses  = 5 + 2*3 + (5 + 3 + 10) = 29
	assert.Equal(t, 104, got.ConstraintCount)
	assert.Equal(t, 29, got.WitnessCount)
	assert.Equal(t, 104/1000+29/500, got.EstimatedGenerationMs)
	assert.Equal(t, 104/5000+10, got.EstimatedVerificationMs)
	assert.Equal(t, (104+29)/10000, got.EstimatedMemoryUsageMB)
}

func TestVerifyConstraintsTolerance(t *testing.T) {
	c := &Circuit{ID: 1, MaxDataPoints: 10, MaxDataSources: 5}
	privateData := []*uint256.Int{
		uint256.NewInt(6000),
		uint256.NewInt(6100),
		uint256.NewInt(5900),
		uint256.NewInt(6200),
	}
	reliabilities := []uint8{95, 90}

	// avg = 6050, tolerance = public/20
	assert.True(t, c.VerifyConstraints(privateData, reliabilities, uint256.NewInt(6050), 90),
		"aggregate matching the private average must pass")
	assert.False(t, c.VerifyConstraints(privateData, reliabilities, uint256.NewInt(6500), 90),
		"aggregate more than 5 percent off must fail")
}

func TestVerifyConstraintsReliabilityQualityBound(t *testing.T) {
	c := &Circuit{ID: 1, MaxDataPoints: 10, MaxDataSources: 5}
	privateData := []*uint256.Int{uint256.NewInt(100), uint256.NewInt(100)}
	reliabilities := []uint8{90, 85} // integer avg = 87

	assert.True(t, c.VerifyConstraints(privateData, reliabilities, uint256.NewInt(100), 88))
	assert.False(t, c.VerifyConstraints(privateData, reliabilities, uint256.NewInt(100), 98),
		"quality above avg reliability + 10 must fail")
}

func TestVerifyConstraintsRejectsRangeViolation(t *testing.T) {
	c := &Circuit{ID: 1, MaxDataPoints: 10, MaxDataSources: 5}
	privateData := []*uint256.Int{uint256.NewInt(100), uint256.NewInt(100)}

	assert.False(t, c.VerifyConstraints(privateData, []uint8{90, 85}, uint256.NewInt(100), 150),
		"quality over 100 fails before the reliability rule")
}

func TestVerifyConstraintsCapacityAndSourceCount(t *testing.T) {
	c := &Circuit{ID: 1, MaxDataPoints: 2, MaxDataSources: 2}
	data := []*uint256.Int{uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(10)}

	assert.False(t, c.VerifyConstraints(data, []uint8{90, 90}, uint256.NewInt(10), 50),
		"too many data points for circuit capacity")
	assert.False(t, c.VerifyConstraints(data[:2], []uint8{90}, uint256.NewInt(10), 50),
		"fewer than two sources")
	assert.False(t, c.VerifyConstraints(data[:2], []uint8{90, 90, 90}, uint256.NewInt(10), 50),
		"too many sources for circuit capacity")
}
