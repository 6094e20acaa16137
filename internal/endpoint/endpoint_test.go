package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butido/butido/internal/filestore"
	"github.com/butido/butido/internal/job"
)

func TestHasCapacityRespectsMaxJobs(t *testing.T) {
	e := &Endpoint{cfg: Config{MaxJobs: 2}}
	assert.True(t, e.HasCapacity())
	e.numCurrentJobs = 2
	assert.False(t, e.HasCapacity())
}

func TestContainsHelper(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
}

func TestEnvStringsOnlyIncludesEnvResources(t *testing.T) {
	ap, err := filestore.NewArtifactPath("a-1.tar")
	require.NoError(t, err)

	resources := []job.Resource{
		job.EnvResource("K", "V"),
		job.ArtifactResource(ap),
	}
	got := envStrings(resources)
	assert.Equal(t, []string{"K=V"}, got)
}

func TestNewCarriesKeepFailedContainersIntoEndpoint(t *testing.T) {
	e, err := New(Config{KeepFailedContainers: true})
	require.NoError(t, err)
	assert.True(t, e.keepOnFailure)

	e, err = New(Config{})
	require.NoError(t, err)
	assert.False(t, e.keepOnFailure)
}

func TestContainerErrorMessage(t *testing.T) {
	err := &ContainerError{ContainerID: "abc123", ExitCode: 1, Message: "boom"}
	assert.Contains(t, err.Error(), "abc123")
	assert.Contains(t, err.Error(), "boom")
}
