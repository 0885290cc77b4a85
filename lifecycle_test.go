package coro

import "testing"

func TestInitFiniNoWork(t *testing.T) {
	s, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Schedule(); err != nil {
		t.Fatalf("Schedule on idle scheduler: %v", err)
	}
	if err := s.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
}

func TestFiniTwiceReturnsErrSchedulerClosed(t *testing.T) {
	s, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Fini(); err != nil {
		t.Fatalf("first Fini: %v", err)
	}
	if err := s.Fini(); err != ErrSchedulerClosed {
		t.Fatalf("second Fini = %v, want ErrSchedulerClosed", err)
	}
}

func TestCreateThreadAfterFiniFails(t *testing.T) {
	s, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
	if _, err := s.CreateThread(WorkFunc(func(*Scheduler) int { return 0 })); err != ErrSchedulerClosed {
		t.Fatalf("CreateThread after Fini = %v, want ErrSchedulerClosed", err)
	}
}
