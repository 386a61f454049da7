package evdisp

import (
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.evReadyNum != 256 || o.timerHeapInitCap != 16 || o.idleWaitMax != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	if !o.reuseAddr {
		t.Fatalf("reuseAddr should default true")
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	o := buildOptions(EvReadyNum(-1), TimerHeapInitCap(0), IdleWaitMax(-time.Second), MinWait(0), ListenBacklog(-5))
	def := defaultOptions()
	if o.evReadyNum != def.evReadyNum {
		t.Fatalf("EvReadyNum(-1) should be ignored, got %d", o.evReadyNum)
	}
	if o.timerHeapInitCap != def.timerHeapInitCap {
		t.Fatalf("TimerHeapInitCap(0) should be ignored, got %d", o.timerHeapInitCap)
	}
	if o.idleWaitMax != def.idleWaitMax {
		t.Fatalf("IdleWaitMax(-1s) should be ignored, got %v", o.idleWaitMax)
	}
	if o.minWait != def.minWait {
		t.Fatalf("MinWait(0) should be ignored, got %v", o.minWait)
	}
	if o.listenBacklog != def.listenBacklog {
		t.Fatalf("ListenBacklog(-5) should be ignored, got %d", o.listenBacklog)
	}
}

func TestOptionsApplyValidValues(t *testing.T) {
	o := buildOptions(
		EvReadyNum(64),
		TimerHeapInitCap(8),
		IdleWaitMax(2*time.Second),
		MinWait(5*time.Millisecond),
		ReuseAddr(false),
		ListenBacklog(32),
		RecvBuffSize(4096),
		SendBuffSize(8192),
	)
	if o.evReadyNum != 64 || o.timerHeapInitCap != 8 || o.idleWaitMax != 2*time.Second ||
		o.minWait != 5*time.Millisecond || o.reuseAddr || o.listenBacklog != 32 ||
		o.recvBuffSize != 4096 || o.sendBuffSize != 8192 {
		t.Fatalf("options not applied as expected: %+v", o)
	}
}
