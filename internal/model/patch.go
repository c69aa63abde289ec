package model

import "time"

// Assignment is one typed column assignment within a Patch.
type Assignment struct {
	Column string
	Value  any
}

// Patch is an ordered set of column assignments destined for a single
// parameterized UPDATE. Field setters pair every value column with its
// `_source` companion; a source column is never written without its value.
type Patch struct {
	assignments []Assignment
}

// Set records a raw column assignment. Callers outside this package should
// prefer the typed setters.
func (p *Patch) Set(column string, value any) {
	for i, a := range p.assignments {
		if a.Column == column {
			p.assignments[i].Value = value
			return
		}
	}
	p.assignments = append(p.assignments, Assignment{Column: column, Value: value})
}

// SetVendor records the ticket vendor and its source tag.
func (p *Patch) SetVendor(vendor, source string) {
	p.Set("ticket_vendor", vendor)
	p.Set("ticket_vendor_source", source)
}

// SetCapacity records the venue capacity and its source tag.
func (p *Patch) SetCapacity(capacity int64, source string) {
	p.Set("capacity", capacity)
	p.Set("capacity_source", source)
}

// SetPrice records the average ticket price and its source tag.
func (p *Patch) SetPrice(price float64, source string) {
	p.Set("avg_ticket_price", price)
	p.Set("avg_ticket_price_source", source)
}

// SetRevenue records the derived annual revenue and its source tag.
func (p *Patch) SetRevenue(revenue float64, source string) {
	p.Set("annual_revenue", revenue)
	p.Set("annual_revenue_source", source)
}

// SetStatus records the enrichment status marker.
func (p *Patch) SetStatus(s Status) {
	p.Set("enrichment_status", string(s))
}

// SetNotes records the notes column.
func (p *Patch) SetNotes(notes string) {
	p.Set("notes", notes)
}

// SetSegment records the revenue size segment.
func (p *Patch) SetSegment(segment string) {
	p.Set("segment", segment)
}

// Touch bumps the last-updated timestamp.
func (p *Patch) Touch(now time.Time) {
	p.Set("last_updated", now.UTC())
}

// Assignments returns the assignments in insertion order.
func (p *Patch) Assignments() []Assignment {
	return p.assignments
}

// Len returns the number of column assignments.
func (p *Patch) Len() int {
	return len(p.assignments)
}

// Has reports whether the patch assigns the given column.
func (p *Patch) Has(column string) bool {
	for _, a := range p.assignments {
		if a.Column == column {
			return true
		}
	}
	return false
}

// HasBusinessField reports whether the patch sets at least one of the
// enrichable business attributes. A patch without any is status-only.
func (p *Patch) HasBusinessField() bool {
	for _, a := range p.assignments {
		switch a.Column {
		case "ticket_vendor", "capacity", "avg_ticket_price", "annual_revenue":
			return true
		}
	}
	return false
}
