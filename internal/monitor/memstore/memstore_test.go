package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nodalwatch/sentinel/internal/monitor"
	"github.com/nodalwatch/sentinel/internal/monitor/memstore"
)

func TestDeleteServer_CascadesToServicesAndAlerts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()

	srv, err := store.CreateServer(ctx, "web-1", "key", "")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	svc, err := store.FindOrCreateService(ctx, srv.ID, "nginx")
	if err != nil {
		t.Fatalf("FindOrCreateService() error = %v", err)
	}
	if _, err := store.AppendServiceState(ctx, svc.ID, monitor.StateOK, "", time.Now()); err != nil {
		t.Fatalf("AppendServiceState() error = %v", err)
	}
	if _, err := store.AppendAlert(ctx, &monitor.Alert{ServerID: &srv.ID, ServiceID: &svc.ID, Channel: "api", Event: "alert", Message: "x"}); err != nil {
		t.Fatalf("AppendAlert() error = %v", err)
	}

	if err := store.DeleteServer(ctx, srv.ID); err != nil {
		t.Fatalf("DeleteServer() error = %v", err)
	}

	if _, ok, _ := store.GetServer(ctx, srv.ID); ok {
		t.Error("server still present after delete")
	}
	if _, ok, _ := store.GetService(ctx, svc.ID); ok {
		t.Error("service still present after cascading server delete")
	}
	states, _ := store.ListServiceStates(ctx, svc.ID, time.Time{})
	if len(states) != 0 {
		t.Errorf("service states = %v, want none after cascade", states)
	}
	alerts, _ := store.ListAlerts(ctx, nil, nil, time.Time{})
	if len(alerts) != 0 {
		t.Errorf("alerts = %v, want none after cascade", alerts)
	}
}

func TestDeleteService_NotFound(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	err := store.DeleteService(context.Background(), 999)
	var notFound *monitor.NotFoundError
	if err == nil {
		t.Fatal("expected error deleting nonexistent service")
	}
	if !errors.As(err, &notFound) {
		t.Errorf("err = %v, want *NotFoundError", err)
	}
}

func TestListServiceStates_FiltersBySince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	srv, _ := store.CreateServer(ctx, "web-1", "key", "")
	svc, _ := store.FindOrCreateService(ctx, srv.ID, "nginx")

	old := time.Now().Add(-time.Hour)
	recent := time.Now()
	if _, err := store.AppendServiceState(ctx, svc.ID, monitor.StateOK, "", old); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendServiceState(ctx, svc.ID, monitor.StateFail, "", recent); err != nil {
		t.Fatal(err)
	}

	states, err := store.ListServiceStates(ctx, svc.ID, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListServiceStates() error = %v", err)
	}
	if len(states) != 1 || states[0].State != monitor.StateFail {
		t.Errorf("states = %+v, want only the recent FAIL row", states)
	}
}

func TestAppendServiceState_AdvancesLatestStateID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	srv, _ := store.CreateServer(ctx, "web-1", "key", "")
	svc, _ := store.FindOrCreateService(ctx, srv.ID, "nginx")

	st1, err := store.AppendServiceState(ctx, svc.ID, monitor.StateOK, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	latest, ok, err := store.LatestState(ctx, svc.ID)
	if err != nil || !ok || latest.ID != st1.ID {
		t.Fatalf("LatestState() = %+v, %v, %v, want state %d", latest, ok, err, st1.ID)
	}

	st2, err := store.AppendServiceState(ctx, svc.ID, monitor.StateFail, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	latest, ok, err = store.LatestState(ctx, svc.ID)
	if err != nil || !ok || latest.ID != st2.ID {
		t.Fatalf("LatestState() after second append = %+v, %v, %v, want state %d", latest, ok, err, st2.ID)
	}
}
