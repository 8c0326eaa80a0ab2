package cache

import (
	"sync"
	"testing"
	"time"
)

func TestConfigView_ReadReturnsBase(t *testing.T) {
	base := validConfig().MergeDefaults()
	v := newConfigView(base)
	if v.Read() != base {
		t.Error("expected Read to return the base snapshot")
	}
}

func TestConfigView_AssignAndReset(t *testing.T) {
	base := validConfig().MergeDefaults()
	v := newConfigView(base)

	v.Assign(&DynamicConfig{UpdateInterval: time.Second})
	if got := v.Read().UpdateInterval; got != time.Second {
		t.Errorf("overlay not visible: %v", got)
	}

	v.Assign(nil)
	if v.Read() != base {
		t.Error("nil overlay must reset to the base snapshot")
	}
}

func TestConfigView_OldSnapshotStaysValid(t *testing.T) {
	base := validConfig().MergeDefaults()
	v := newConfigView(base)

	v.Assign(&DynamicConfig{UpdateInterval: time.Second})
	old := v.Read()
	v.Assign(&DynamicConfig{UpdateInterval: 2 * time.Second})
	v.Cleanup()

	// the reader's snapshot is unaffected by later writes and cleanup
	if old.UpdateInterval != time.Second {
		t.Errorf("old snapshot mutated: %v", old.UpdateInterval)
	}
}

func TestConfigView_ConcurrentReaders(t *testing.T) {
	base := validConfig().MergeDefaults()
	v := newConfigView(base)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cfg := v.Read()
				// a torn snapshot would show a zero interval
				if cfg.UpdateInterval <= 0 {
					t.Error("observed invalid snapshot")
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		v.Assign(&DynamicConfig{UpdateInterval: time.Duration(i+1) * time.Millisecond})
		if i%10 == 0 {
			v.Cleanup()
		}
	}
	close(stop)
	wg.Wait()
}
