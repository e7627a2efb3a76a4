package cluster_test

import (
	"strings"
	"testing"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedNames(t *testing.T) {
	t.Parallel()

	names := cluster.NewReservedNames("cf-controller")

	testCases := []struct {
		name     string
		reserved bool
	}{
		{name: "cf-controller", reserved: true},
		{name: "cf-controller-2", reserved: true},
		{name: "cf-controller-17", reserved: true},
		{name: "cf-controller-1", reserved: false},
		{name: "cf-controller-dev", reserved: false},
		{name: "my-cluster", reserved: false},
		{name: "", reserved: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.reserved, names.IsController(tc.name))

			err := names.CheckNameNotReserved(tc.name, "clusterflow launch")
			if !tc.reserved {
				require.NoError(t, err)
				return
			}

			var reservedErr cluster.ReservedNameError
			require.True(t, errors.As(err, &reservedErr))
			assert.Equal(t, tc.name, reservedErr.Name)
		})
	}
}

func TestGenerateName(t *testing.T) {
	t.Parallel()

	first := cluster.GenerateName()
	second := cluster.GenerateName()

	assert.NotEqual(t, first, second)
	assert.Regexp(t, `^clusterflow-[0-9a-f]{8}$`, first)
	assert.False(t, cluster.NewReservedNames("clusterflow-controller").IsController(first))
}

func TestControllerIndex(t *testing.T) {
	t.Parallel()

	names := cluster.NewReservedNames("cf-controller")

	assert.Equal(t, 1, names.ControllerIndex("cf-controller"))
	assert.Equal(t, 5, names.ControllerIndex("cf-controller-5"))
	assert.Equal(t, 0, names.ControllerIndex("cf-controller-1"))
	assert.Equal(t, 0, names.ControllerIndex("my-cluster"))
}

func TestCheckNameValid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		valid bool
	}{
		{name: "my-cluster", valid: true},
		{name: "a", valid: true},
		{name: "train.v2_gpu-3", valid: true},
		{name: cluster.GenerateName(), valid: true},
		{name: "", valid: false},
		{name: "x; touch /tmp/pwned", valid: false},
		{name: "../x", valid: false},
		{name: "a/b", valid: false},
		{name: "-leading-dash", valid: false},
		{name: "trailing-", valid: false},
		{name: "9lives", valid: false},
		{name: "$(id)", valid: false},
		{name: strings.Repeat("a", cluster.MaxNameLength+1), valid: false},
	}

	for _, tc := range testCases {
		err := cluster.CheckNameValid(tc.name)
		if tc.valid {
			assert.NoError(t, err, tc.name)
			continue
		}

		var invalid cluster.InvalidNameError
		require.ErrorAs(t, err, &invalid, tc.name)
		assert.Equal(t, tc.name, invalid.Name)
	}
}
