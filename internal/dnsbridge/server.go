// Package dnsbridge serves authoritative DNS answers for the registry zone
// straight out of the registration store: A records for the subscribed names
// and TXT records for their ACME DNS-01 challenges.
//
// Every query hits the store through the challenge accessor, so a challenge
// written by /dnsconfig is visible to the next DNS query with no caching.
package dnsbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/homegate/registration-server/internal/registration/model"
	"github.com/homegate/registration-server/internal/registration/service"
)

const (
	challengeLabel = "_acme-challenge."
	localLabel     = "local."
	defaultTTL     = 60
)

var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "regsrv_dns_queries_total",
	Help: "Total DNS bridge queries by type and result.",
}, []string{"qtype", "result"})

// recordLookup is the read surface the bridge needs.
// *service.ChallengeService satisfies this interface.
type recordLookup interface {
	LookupChallenge(ctx context.Context, remoteName string) (string, error)
	LookupRecord(ctx context.Context, remoteName string) (*model.DomainRecord, error)
}

// Server is an authoritative DNS server for the registry zone.
type Server struct {
	lookup recordLookup
	zone   string // "box.<domain>.", all subscribed names live under it
	mbox   string // SOA responsible mailbox
	logger *zap.Logger

	udp *dns.Server
	tcp *dns.Server
}

// NewServer creates a bridge for the given registry domain listening on addr
// (host:port, both UDP and TCP).
func NewServer(lookup recordLookup, domain, addr string, logger *zap.Logger) *Server {
	s := &Server{
		lookup: lookup,
		zone:   dns.Fqdn("box." + domain),
		mbox:   dns.Fqdn("hostmaster.box." + domain),
		logger: logger,
	}
	s.udp = &dns.Server{Addr: addr, Net: "udp", Handler: s}
	s.tcp = &dns.Server{Addr: addr, Net: "tcp", Handler: s}
	return s
}

// Start brings up the UDP and TCP listeners. It returns after both listeners
// have stopped; the first listener error is returned.
func (s *Server) Start() error {
	errc := make(chan error, 2)
	go func() { errc <- s.udp.ListenAndServe() }()
	go func() { errc <- s.tcp.ListenAndServe() }()

	s.logger.Info("dns bridge listening",
		zap.String("addr", s.udp.Addr),
		zap.String("zone", s.zone),
	)
	return <-errc
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	uerr := s.udp.ShutdownContext(ctx)
	terr := s.tcp.ShutdownContext(ctx)
	if uerr != nil {
		return uerr
	}
	return terr
}

// ServeDNS implements dns.Handler.
func (s *Server) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	if len(req.Question) == 0 {
		m.Rcode = dns.RcodeFormatError
		s.respond(w, m, "formerr", "")
		return
	}

	q := req.Question[0]
	qname := strings.ToLower(q.Name)
	qtype := dns.TypeToString[q.Qtype]

	// In-zone means the apex itself or a name on a label boundary below it;
	// a bare suffix match would also claim "evilbox.example.com.".
	if qname != s.zone && !strings.HasSuffix(qname, "."+s.zone) {
		m.Rcode = dns.RcodeRefused
		s.respond(w, m, "refused", qtype)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// known distinguishes an empty answer for an existing name (NOERROR)
	// from an unknown name (NXDOMAIN).
	known := qname == s.zone

	switch q.Qtype {
	case dns.TypeTXT:
		known = s.answerTXT(ctx, m, qname) || known
	case dns.TypeA:
		known = s.answerA(ctx, m, qname) || known
	case dns.TypeSOA:
		if qname == s.zone {
			m.Answer = append(m.Answer, s.soa())
		}
	case dns.TypeNS:
		if qname == s.zone {
			m.Answer = append(m.Answer, &dns.NS{
				Hdr: s.header(s.zone, dns.TypeNS),
				Ns:  s.zone,
			})
		}
	default:
		known = s.nameExists(ctx, qname)
	}

	if len(m.Answer) == 0 && m.Rcode == dns.RcodeSuccess {
		if !known {
			m.Rcode = dns.RcodeNameError
		}
		m.Ns = append(m.Ns, s.soa())
	}

	result := "ok"
	if m.Rcode != dns.RcodeSuccess {
		result = strings.ToLower(dns.RcodeToString[m.Rcode])
	}
	s.respond(w, m, result, qtype)
}

// answerTXT resolves "_acme-challenge.<name>" from the stored challenge.
// Reports whether the queried name exists.
func (s *Server) answerTXT(ctx context.Context, m *dns.Msg, qname string) bool {
	name, ok := strings.CutPrefix(qname, challengeLabel)
	if !ok {
		return s.nameExists(ctx, qname)
	}
	if !s.nameExists(ctx, name) {
		return false
	}

	challenge, err := s.lookup.LookupChallenge(ctx, remoteNameFor(name))
	if err != nil {
		s.storeError(m, "txt lookup", err)
		return true
	}
	if challenge == "" {
		return true
	}

	m.Answer = append(m.Answer, &dns.TXT{
		Hdr: s.header(qname, dns.TypeTXT),
		Txt: []string{challenge},
	})
	return true
}

// answerA resolves the remote name to the public address and the local name to
// the LAN address the device registered. Reports whether the name exists.
func (s *Server) answerA(ctx context.Context, m *dns.Msg, qname string) bool {
	rec, err := s.lookup.LookupRecord(ctx, remoteNameFor(qname))
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			s.storeError(m, "a lookup", err)
			return true
		}
		return false
	}

	addr := rec.PublicIP
	if strings.HasPrefix(qname, localLabel) {
		addr = rec.LocalIP
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return true
	}

	m.Answer = append(m.Answer, &dns.A{
		Hdr: s.header(qname, dns.TypeA),
		A:   ip.To4(),
	})
	return true
}

// nameExists reports whether a record backs the queried name.
func (s *Server) nameExists(ctx context.Context, qname string) bool {
	_, err := s.lookup.LookupRecord(ctx, remoteNameFor(qname))
	return err == nil
}

// remoteNameFor maps a query name to the stored remote name, stripping the
// "local." label when present.
func remoteNameFor(qname string) string {
	return strings.TrimPrefix(qname, localLabel)
}

func (s *Server) storeError(m *dns.Msg, op string, err error) {
	s.logger.Error("dns bridge "+op, zap.Error(err))
	m.Rcode = dns.RcodeServerFailure
}

func (s *Server) soa() dns.RR {
	return &dns.SOA{
		Hdr:     s.header(s.zone, dns.TypeSOA),
		Ns:      s.zone,
		Mbox:    s.mbox,
		Serial:  uint32(time.Now().Unix()),
		Refresh: 900,
		Retry:   900,
		Expire:  1800,
		Minttl:  defaultTTL,
	}
}

func (s *Server) header(name string, rrtype uint16) dns.RR_Header {
	return dns.RR_Header{
		Name:   name,
		Rrtype: rrtype,
		Class:  dns.ClassINET,
		Ttl:    defaultTTL,
	}
}

func (s *Server) respond(w dns.ResponseWriter, m *dns.Msg, result, qtype string) {
	queriesTotal.WithLabelValues(qtype, result).Inc()
	if err := w.WriteMsg(m); err != nil {
		s.logger.Error("dns bridge write", zap.Error(err))
	}
}

// String describes the server for logs.
func (s *Server) String() string {
	return fmt.Sprintf("dnsbridge(%s)", s.zone)
}
