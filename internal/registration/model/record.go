package model

import "strings"

// DomainRecord is the core domain model: one row per subscribed device.
//
// RemoteName is derived once at subscribe time and never changes; it is the
// fully-qualified, lowercase name with a trailing dot, e.g.
// "myhouse.box.example.com.". LocalName is always "local." + RemoteName.
type DomainRecord struct {
	Token        string `json:"token"         db:"token"`
	LocalName    string `json:"local_name"    db:"local_name"`
	RemoteName   string `json:"remote_name"   db:"remote_name"`
	DNSChallenge string `json:"dns_challenge" db:"dns_challenge"`
	LocalIP      string `json:"local_ip"      db:"local_ip"`
	PublicIP     string `json:"public_ip"     db:"public_ip"`
	Description  string `json:"description"   db:"description"`
	Email        string `json:"email"         db:"email"`
	// Timestamp is the unix time (seconds) of the last successful registration,
	// 0 until the device registers for the first time.
	Timestamp int64 `json:"timestamp" db:"timestamp"`
}

// Discovered is one entry of a ping or discovery response.
type Discovered struct {
	Href string `json:"href"`
	Desc string `json:"desc"`
}

// DiscoveredLocal builds a Discovered pointing at the record's LAN-local name.
func (r *DomainRecord) DiscoveredLocal() Discovered {
	return Discovered{Href: hrefFor(r.LocalName), Desc: r.Description}
}

// DiscoveredRemote builds a Discovered pointing at the record's public name.
func (r *DomainRecord) DiscoveredRemote() Discovered {
	return Discovered{Href: hrefFor(r.RemoteName), Desc: r.Description}
}

// hrefFor turns a stored FQDN (with trailing dot) into an https URL.
func hrefFor(name string) string {
	return "https://" + strings.TrimSuffix(name, ".")
}

// NameAndToken is the subscribe response payload. The full domain name and the
// DNS challenge are intentionally not included.
type NameAndToken struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}
