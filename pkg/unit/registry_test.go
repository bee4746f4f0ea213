package unit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
)

// MockListener is a mock implementation of Listener for testing
type MockListener struct {
	mock.Mock
}

func (m *MockListener) UnitAdded(u *Unit) error {
	args := m.Called(u.Name())
	return args.Error(0)
}

func (m *MockListener) UnitRemoved(u *Unit) {
	m.Called(u.Name())
}

func (m *MockListener) UnitStateChanged(u *Unit, from, to ActiveState) {
	m.Called(u.Name(), from, to)
}

func createTestRegistry(t *testing.T) *Registry {
	return NewRegistry(logging.NewNopLogger())
}

func TestRegistry_AddUnit(t *testing.T) {
	t.Run("new_unit_is_inactive", func(t *testing.T) {
		registry := createTestRegistry(t)

		path, err := registry.AddUnit("foo.service")
		require.NoError(t, err)
		assert.Equal(t, "/org/freedesktop/systemd1/unit/foo_service", string(path))

		u, err := registry.Lookup("foo.service")
		require.NoError(t, err)
		assert.Equal(t, ActiveStateInactive, u.ActiveState())
		assert.Equal(t, "foo.service", u.Name())
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("duplicate_conflicts", func(t *testing.T) {
		registry := createTestRegistry(t)

		_, err := registry.AddUnit("foo.service")
		require.NoError(t, err)

		path, err := registry.AddUnit("foo.service")
		assert.Error(t, err)
		assert.True(t, errors.IsConflictError(err))
		assert.Empty(t, path)
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("colliding_names_conflict", func(t *testing.T) {
		pairs := [][2]string{
			{"foo.service", "FOO.SERVICE"},
			{"foo.service", "foo_service"},
			{"Api.Socket", "api_socket"},
		}
		for _, pair := range pairs {
			registry := createTestRegistry(t)

			_, err := registry.AddUnit(pair[0])
			require.NoError(t, err)

			_, err = registry.AddUnit(pair[1])
			assert.True(t, errors.IsConflictError(err), "%s vs %s", pair[0], pair[1])
		}
	})

	t.Run("conflict_keeps_original", func(t *testing.T) {
		registry := createTestRegistry(t)

		_, err := registry.AddUnit("foo.service")
		require.NoError(t, err)
		_, err = registry.StartUnit("foo.service", "replace")
		require.NoError(t, err)

		_, err = registry.AddUnit("FOO.service")
		require.Error(t, err)

		u, err := registry.Lookup("foo.service")
		require.NoError(t, err)
		assert.Equal(t, "foo.service", u.Name())
		assert.Equal(t, ActiveStateActive, u.ActiveState())
	})

	t.Run("invalid_name", func(t *testing.T) {
		registry := createTestRegistry(t)

		_, err := registry.AddUnit("bad-name.service")
		assert.True(t, errors.IsInvalidAddressError(err))
		assert.Equal(t, 0, registry.Len())
	})
}

func TestRegistry_GetUnit(t *testing.T) {
	registry := createTestRegistry(t)

	added, err := registry.AddUnit("db.service")
	require.NoError(t, err)

	got, err := registry.GetUnit("db.service")
	require.NoError(t, err)
	assert.Equal(t, added, got)

	got, err = registry.GetUnit("DB.Service")
	require.NoError(t, err)
	assert.Equal(t, added, got)

	_, err = registry.GetUnit("missing.service")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = registry.GetUnit("")
	assert.True(t, errors.IsInvalidAddressError(err))
}

func TestRegistry_RemoveUnit(t *testing.T) {
	t.Run("remove_existing", func(t *testing.T) {
		registry := createTestRegistry(t)

		_, err := registry.AddUnit("foo.service")
		require.NoError(t, err)

		removed, err := registry.RemoveUnit("foo.service")
		require.NoError(t, err)
		assert.True(t, removed)

		_, err = registry.GetUnit("foo.service")
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("remove_never_added", func(t *testing.T) {
		registry := createTestRegistry(t)

		removed, err := registry.RemoveUnit("ghost.service")
		assert.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("remove_twice", func(t *testing.T) {
		registry := createTestRegistry(t)

		_, err := registry.AddUnit("foo.service")
		require.NoError(t, err)

		removed, err := registry.RemoveUnit("FOO.SERVICE")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = registry.RemoveUnit("foo.service")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("readd_after_remove", func(t *testing.T) {
		registry := createTestRegistry(t)

		_, err := registry.AddUnit("foo.service")
		require.NoError(t, err)
		_, err = registry.StartUnit("foo.service", "replace")
		require.NoError(t, err)
		_, err = registry.RemoveUnit("foo.service")
		require.NoError(t, err)

		_, err = registry.AddUnit("foo.service")
		require.NoError(t, err)
		u, err := registry.Lookup("foo.service")
		require.NoError(t, err)
		assert.Equal(t, ActiveStateInactive, u.ActiveState())
	})

	t.Run("invalid_name", func(t *testing.T) {
		registry := createTestRegistry(t)

		removed, err := registry.RemoveUnit("a b")
		assert.True(t, errors.IsInvalidAddressError(err))
		assert.False(t, removed)
	})
}

func TestRegistry_Transitions(t *testing.T) {
	operations := []struct {
		name     string
		apply    func(r *Registry, name string) error
		expected ActiveState
	}{
		{"start", func(r *Registry, name string) error { _, err := r.StartUnit(name, "replace"); return err }, ActiveStateActive},
		{"stop", func(r *Registry, name string) error { _, err := r.StopUnit(name, "replace"); return err }, ActiveStateInactive},
		{"restart", func(r *Registry, name string) error { _, err := r.RestartUnit(name, "fail"); return err }, ActiveStateActive},
	}

	for _, op := range operations {
		for _, initial := range AllActiveStates() {
			t.Run(fmt.Sprintf("%s_from_%s", op.name, initial), func(t *testing.T) {
				registry := createTestRegistry(t)
				_, err := registry.AddUnit("foo.service")
				require.NoError(t, err)
				require.NoError(t, registry.SetUnitState("foo.service", initial))

				require.NoError(t, op.apply(registry, "foo.service"))
				u, err := registry.Lookup("foo.service")
				require.NoError(t, err)
				assert.Equal(t, op.expected, u.ActiveState())

				// repeating is idempotent
				require.NoError(t, op.apply(registry, "FOO.SERVICE"))
				assert.Equal(t, op.expected, u.ActiveState())
			})
		}
	}
}

func TestRegistry_TransitionsReturnFixedJob(t *testing.T) {
	registry := createTestRegistry(t)
	_, err := registry.AddUnit("foo.service")
	require.NoError(t, err)

	for _, mode := range []string{"replace", "fail", "isolate", "ignore-dependencies", ""} {
		job, err := registry.StartUnit("foo.service", mode)
		require.NoError(t, err)
		assert.Equal(t, JobPath, job)

		job, err = registry.StopUnit("foo.service", mode)
		require.NoError(t, err)
		assert.Equal(t, JobPath, job)

		job, err = registry.RestartUnit("foo.service", mode)
		require.NoError(t, err)
		assert.Equal(t, JobPath, job)
	}
}

func TestRegistry_TransitionsOnMissingUnit(t *testing.T) {
	registry := createTestRegistry(t)

	_, err := registry.StartUnit("missing.service", "replace")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = registry.StopUnit("missing.service", "replace")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = registry.RestartUnit("missing.service", "replace")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(registry.SetUnitState("missing.service", ActiveStateFailed)))

	_, err = registry.StartUnit("bad/name", "replace")
	assert.True(t, errors.IsInvalidAddressError(err))
}

func TestRegistry_SetUnitStateRejectsUnknownState(t *testing.T) {
	registry := createTestRegistry(t)
	_, err := registry.AddUnit("foo.service")
	require.NoError(t, err)

	err = registry.SetUnitState("foo.service", ActiveState("running"))
	assert.True(t, errors.IsValidationError(err))

	u, err := registry.Lookup("foo.service")
	require.NoError(t, err)
	assert.Equal(t, ActiveStateInactive, u.ActiveState())
}

func TestRegistry_SetUnitStateIgnoresCase(t *testing.T) {
	registry := createTestRegistry(t)
	_, err := registry.AddUnit("foo.service")
	require.NoError(t, err)

	require.NoError(t, registry.SetUnitState("foo.service", ActiveState("Failed")))

	u, err := registry.Lookup("foo.service")
	require.NoError(t, err)
	assert.Equal(t, ActiveStateFailed, u.ActiveState())

	require.NoError(t, registry.SetUnitState("foo.service", ActiveState(" ACTIVE ")))
	assert.Equal(t, ActiveStateActive, u.ActiveState())
}

func TestRegistry_RejectedUnitIsNotAdded(t *testing.T) {
	registry := createTestRegistry(t)
	listener := &MockListener{}
	listener.On("UnitAdded", "foo.service").Return(fmt.Errorf("export failed")).Once()
	listener.On("UnitAdded", "bar.service").Return(nil).Once()
	require.NoError(t, registry.SetListener(listener))

	_, err := registry.AddUnit("foo.service")
	require.Error(t, err)
	assert.True(t, errors.IsInternalError(err))

	_, err = registry.GetUnit("foo.service")
	assert.True(t, errors.IsNotFoundError(err))
	assert.Equal(t, 0, registry.Len())

	_, err = registry.AddUnit("bar.service")
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	listener.AssertExpectations(t)
}

func TestRegistry_SetListenerFailedReplay(t *testing.T) {
	registry := createTestRegistry(t)
	_, err := registry.AddUnit("foo.service")
	require.NoError(t, err)

	failing := &MockListener{}
	failing.On("UnitAdded", "foo.service").Return(fmt.Errorf("export failed")).Once()
	assert.Error(t, registry.SetListener(failing))

	// the failed listener was not installed
	_, err = registry.StartUnit("foo.service", "replace")
	require.NoError(t, err)
	_, err = registry.RemoveUnit("foo.service")
	require.NoError(t, err)

	failing.AssertExpectations(t)
}

func TestRegistry_FooServiceScenario(t *testing.T) {
	registry := createTestRegistry(t)

	path, err := registry.AddUnit("foo.service")
	require.NoError(t, err)
	assert.Equal(t, "/org/freedesktop/systemd1/unit/foo_service", string(path))

	_, err = registry.StartUnit("FOO.SERVICE", "replace")
	require.NoError(t, err)

	u, err := registry.LookupPath(path)
	require.NoError(t, err)
	assert.Equal(t, "active", u.ActiveState().String())
	assert.Empty(t, u.PartOf())

	_, err = registry.AddUnit("foo.service")
	assert.True(t, errors.IsConflictError(err))
}

func TestRegistry_Listener(t *testing.T) {
	registry := createTestRegistry(t)
	listener := &MockListener{}
	listener.On("UnitAdded", "foo.service").Return(nil).Once()
	listener.On("UnitStateChanged", "foo.service", ActiveStateInactive, ActiveStateActive).Once()
	listener.On("UnitStateChanged", "foo.service", ActiveStateActive, ActiveStateInactive).Once()
	listener.On("UnitRemoved", "foo.service").Once()
	require.NoError(t, registry.SetListener(listener))

	_, err := registry.AddUnit("foo.service")
	require.NoError(t, err)
	_, err = registry.AddUnit("foo.service")
	require.Error(t, err)
	_, err = registry.StartUnit("foo.service", "replace")
	require.NoError(t, err)
	_, err = registry.StopUnit("foo.service", "replace")
	require.NoError(t, err)
	_, err = registry.RemoveUnit("foo.service")
	require.NoError(t, err)
	_, err = registry.RemoveUnit("foo.service")
	require.NoError(t, err)

	listener.AssertExpectations(t)
}

func TestRegistry_SetListenerReplaysUnits(t *testing.T) {
	registry := createTestRegistry(t)
	for _, name := range []string{"b.service", "a.service"} {
		_, err := registry.AddUnit(name)
		require.NoError(t, err)
	}

	var added []string
	listener := &MockListener{}
	listener.On("UnitAdded", mock.Anything).Run(func(args mock.Arguments) {
		added = append(added, args.String(0))
	}).Return(nil).Twice()
	listener.On("UnitRemoved", "a.service").Once()
	require.NoError(t, registry.SetListener(listener))

	assert.Equal(t, []string{"a.service", "b.service"}, added)

	_, err := registry.RemoveUnit("a.service")
	require.NoError(t, err)

	// detached listeners see nothing
	require.NoError(t, registry.SetListener(nil))
	_, err = registry.RemoveUnit("b.service")
	require.NoError(t, err)

	listener.AssertExpectations(t)
}

func TestRegistry_UnitsAndClear(t *testing.T) {
	registry := createTestRegistry(t)
	for _, name := range []string{"b.service", "a.service", "c.socket"} {
		_, err := registry.AddUnit(name)
		require.NoError(t, err)
	}
	_, err := registry.StartUnit("a.service", "replace")
	require.NoError(t, err)

	infos := registry.Units()
	require.Len(t, infos, 3)
	assert.Equal(t, "a.service", infos[0].Name)
	assert.Equal(t, ActiveStateActive, infos[0].ActiveState)
	require.NotNil(t, infos[0].LastTransition)
	assert.Equal(t, "start", infos[0].LastTransition.Operation)
	assert.Equal(t, 1, infos[0].TransitionCount)
	assert.Equal(t, "b.service", infos[1].Name)
	assert.Nil(t, infos[1].LastTransition)

	assert.Equal(t, 3, registry.Clear())
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, registry.Clear())
}

func TestRegistry_ConcurrentStartAndRemove(t *testing.T) {
	for i := 0; i < 200; i++ {
		registry := createTestRegistry(t)
		_, err := registry.AddUnit("race.service")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var startErr, removeErr error
		var removed bool

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, startErr = registry.StartUnit("race.service", "replace")
		}()
		go func() {
			defer wg.Done()
			removed, removeErr = registry.RemoveUnit("race.service")
		}()
		wg.Wait()

		require.NoError(t, removeErr)
		assert.True(t, removed)
		if startErr != nil {
			assert.True(t, errors.IsNotFoundError(startErr), "start may only fail with not found: %v", startErr)
		}
		assert.Equal(t, 0, registry.Len())
	}
}

func TestRegistry_ConcurrentOperations(t *testing.T) {
	registry := createTestRegistry(t)

	var wg sync.WaitGroup
	numUnits := 20

	wg.Add(numUnits)
	for i := 0; i < numUnits; i++ {
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("worker%d.service", id)
			_, err := registry.AddUnit(name)
			assert.NoError(t, err)
			for j := 0; j < 20; j++ {
				_, err = registry.StartUnit(name, "replace")
				assert.NoError(t, err)
				_, err = registry.StopUnit(name, "replace")
				assert.NoError(t, err)
				_, err = registry.GetUnit(name)
				assert.NoError(t, err)
			}
		}(i)
	}

	// readers see only whole states
	wg.Add(5)
	for i := 0; i < 5; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for _, info := range registry.Units() {
					assert.Contains(t, []ActiveState{ActiveStateActive, ActiveStateInactive}, info.ActiveState)
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, numUnits, registry.Len())
	for _, info := range registry.Units() {
		assert.Equal(t, ActiveStateInactive, info.ActiveState)
	}
}

func TestRegistry_ConcurrentAddSameName(t *testing.T) {
	registry := createTestRegistry(t)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			defer wg.Done()
			name := "shared.service"
			if id%2 == 0 {
				name = "SHARED.SERVICE"
			}
			_, err := registry.AddUnit(name)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, errors.IsConflictError(err))
		}
	}
	assert.Equal(t, 1, successes)
}
