package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/micro-nova/amplipi-preamp/internal/config"
	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/preamp"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "preamp.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("Load() (-default +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("Parse(nil) (-default +got):\n%s", diff)
	}
}

func TestDefaultsMatchControllers(t *testing.T) {
	cfg := config.Default()
	if diff := cmp.Diff(fan.DefaultConfig(), cfg.FanConfig()); diff != "" {
		t.Errorf("fan config (-controller +config):\n%s", diff)
	}
	if diff := cmp.Diff(preamp.DefaultConfig(), cfg.Scheduler()); diff != "" {
		t.Errorf("scheduler config (-scheduler +config):\n%s", diff)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := config.Parse([]byte(`
watchdog: 50ms
fan:
  min_duty: 0.5
  volts_frac_bits: 3
  amp: {off: 35, low: 40, high: 55, warn: 75}
sim:
  enabled: true
  adc: "4"
  pot: none
  addr: 0x10
link:
  listen: 127.0.0.1:5021
  serial: /dev/ttyAMA2
api:
  addr: 127.0.0.1:8080
  keys: /etc/preamp/keys.yaml
  mdns: true
firmware: 1.8-0badc0d
mqtt:
  broker: tcp://localhost:1883
  heartbeat: "@every 30s"
log:
  level: debug
  file: /var/log/preampd.log
`))
	if err != nil {
		t.Fatal(err)
	}
	want := config.Default()
	want.Watchdog = 50 * time.Millisecond
	want.Fan.MinDuty = 0.5
	want.Fan.VoltsFracBits = 3
	want.Fan.Amp = config.Thresholds{Off: 35, Low: 40, High: 55, Warn: 75}
	want.Sim = config.SimConfig{Enabled: true, ADC: "4", Pot: "none", EEPROM: false, Addr: 0x10}
	want.Link = config.LinkConfig{Listen: "127.0.0.1:5021", Serial: "/dev/ttyAMA2", Baud: 115200}
	want.API = config.APIConfig{Addr: "127.0.0.1:8080", Keys: "/etc/preamp/keys.yaml", MDNS: true}
	want.Firmware = "1.8-0badc0d"
	want.MQTT.Broker = "tcp://localhost:1883"
	want.MQTT.Heartbeat = "@every 30s"
	want.Log.Level = "debug"
	want.Log.File = "/var/log/preampd.log"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}
	if got := cfg.Version(); got != (models.Version{Major: 1, Minor: 8, Hash: 0x0badc0d}) {
		t.Errorf("Version() = %+v", got)
	}
	if got := cfg.FanConfig().MinDuty; got != 64 {
		t.Errorf("min duty = %d, want 64", got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "fan:\n  min_dutyy: 0.2\n", "min_dutyy"},
		{"partial thresholds", "fan:\n  amp: {off: 30}\n", "fan"},
		{"thresholds out of order", "fan:\n  psu: {off: 50, low: 45, high: 60, warn: 80}\n", "fan"},
		{"frac bits", "fan:\n  volts_frac_bits: 5\n", "volts_frac_bits"},
		{"duty above one", "fan:\n  min_duty: 1.5\n", "min_duty"},
		{"short watchdog", "watchdog: 1ms\n", "watchdog"},
		{"one recovery line", "bus:\n  scl: GPIO3\n", "bus.scl"},
		{"sim adc", "sim:\n  adc: \"8\"\n", "sim.adc"},
		{"sim pot", "sim:\n  pot: c\n", "sim.pot"},
		{"odd sim address", "sim:\n  addr: 0x11\n", "sim.addr"},
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"mdns without api", "api:\n  mdns: true\n", "api.mdns"},
		{"firmware", "firmware: one.two\n", "firmware"},
		{"heartbeat", "mqtt:\n  heartbeat: sometimes\n", "mqtt.heartbeat"},
		{"link listen", "link:\n  listen: nowhere\n", "link.listen"},
		{"link baud", "link:\n  baud: -1\n", "link.baud"},
		{"register map unreachable", "link:\n  listen: \"off\"\n", "unreachable"},
		{"not yaml", "{{", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLinkOffWithOtherTransports(t *testing.T) {
	for _, yaml := range []string{
		"link:\n  listen: \"off\"\n  serial: /dev/ttyAMA2\n",
		"link:\n  listen: \"off\"\napi:\n  addr: :8080\n",
		"link:\n  listen: \"off\"\nsim:\n  enabled: true\n",
	} {
		if _, err := config.Parse([]byte(yaml)); err != nil {
			t.Errorf("Parse(%q) error = %v", yaml, err)
		}
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := config.Default()
	cfg.Fan.MinDuty = 2
	before := cfg
	if err := config.Validate(&cfg); err == nil {
		t.Fatal("Validate accepted min_duty 2")
	}
	if diff := cmp.Diff(before, cfg); diff != "" {
		t.Errorf("Validate mutated config:\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "preamp.yaml")
	cfg := config.Default()
	cfg.Bus = config.BusConfig{Name: "I2C1", SCL: "GPIO3", SDA: "GPIO2", HalfPeriod: 10 * time.Microsecond}
	cfg.Pins = config.PinsConfig{NRST: "GPIO4", Boot0: "GPIO5", UART: "GPIO6"}
	cfg.Serial.Downstream = "/dev/ttyAMA1"

	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip (-saved +loaded):\n%s", diff)
	}
}
