package timeouts

import (
	"testing"
	"time"
)

func TestConfigure_IgnoresZero(t *testing.T) {
	defer Reset()

	Configure(Config{Short: 7 * time.Second})

	if got := Short(); got != 7*time.Second {
		t.Errorf("Short: got %v, want %v", got, 7*time.Second)
	}
	if got := Saga(); got != DefaultSaga {
		t.Errorf("Saga: got %v, want %v", got, DefaultSaga)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Ping: time.Minute, Saga: time.Hour})
	Reset()

	cur := Current()
	if cur.Ping != DefaultPing || cur.Saga != DefaultSaga {
		t.Errorf("Reset: got %+v", cur)
	}
}
