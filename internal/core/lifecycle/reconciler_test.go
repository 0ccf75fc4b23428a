package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/origami/origamid/internal/core/domain"
)

func TestStatusReconciler_Reconcile(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		demo       domain.Demo
		container  *domain.Container
		getErr     error
		wantErr    bool
		wantStatus domain.Status
		wantCID    string
		wantSaves  int
	}{
		"no container is a no-op": {
			demo:       domain.Demo{DemoID: "d1", Status: domain.StatusError},
			wantStatus: domain.StatusError,
		},
		"running container status is copied": {
			demo:       domain.Demo{DemoID: "d1", Status: domain.StatusRunning, ContainerID: "c1"},
			container:  &domain.Container{ID: "c1", Status: "exited"},
			wantStatus: "exited",
			wantCID:    "c1",
			wantSaves:  1,
		},
		"missing container resets demo": {
			demo:       domain.Demo{DemoID: "d1", Status: domain.StatusRunning, ContainerID: "gone", Port: 32768},
			wantStatus: domain.StatusEmpty,
			wantSaves:  1,
		},
		"daemon failure leaves demo untouched": {
			demo:       domain.Demo{DemoID: "d1", Status: domain.StatusRunning, ContainerID: "c1"},
			getErr:     errors.New("dial unix /var/run/docker.sock: connect: no such file"),
			wantErr:    true,
			wantStatus: domain.StatusRunning,
			wantCID:    "c1",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rt := newFakeRuntime()
			rt.getErr = tc.getErr
			if tc.container != nil {
				rt.put(*tc.container)
			}
			repo := newMemRepo(tc.demo)
			demo := tc.demo

			err := NewStatusReconciler(rt, repo, nil).Reconcile(context.Background(), &demo)
			if tc.wantErr {
				if !domain.IsConnectionError(err) {
					t.Fatalf("Reconcile() error = %v, want ConnectionError", err)
				}
			} else if err != nil {
				t.Fatalf("Reconcile() unexpected error: %v", err)
			}

			if demo.Status != tc.wantStatus {
				t.Errorf("Status = %q, want %q", demo.Status, tc.wantStatus)
			}
			if demo.ContainerID != tc.wantCID {
				t.Errorf("ContainerID = %q, want %q", demo.ContainerID, tc.wantCID)
			}
			if repo.saves != tc.wantSaves {
				t.Errorf("saves = %d, want %d", repo.saves, tc.wantSaves)
			}
		})
	}
}

func TestStatusReconciler_Idempotent(t *testing.T) {
	t.Parallel()

	rt := newFakeRuntime()
	repo := newMemRepo()
	demo := domain.Demo{DemoID: "d1", Status: domain.StatusRunning, ContainerID: "gone", Port: 40000}
	r := NewStatusReconciler(rt, repo, nil)

	for i := range 2 {
		if err := r.Reconcile(context.Background(), &demo); err != nil {
			t.Fatalf("Reconcile() #%d error: %v", i, err)
		}
	}

	stored, _ := repo.stored("d1")
	want := domain.Demo{DemoID: "d1", Status: domain.StatusEmpty, Port: 40000}
	if stored != want {
		t.Errorf("stored = %+v, want %+v", stored, want)
	}
}
