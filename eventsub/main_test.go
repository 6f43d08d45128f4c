package eventsub

import (
	"os"
	"testing"

	"github.com/beanjamin25/beanbot/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}
