package iostate

// Bio is a block I/O fragment as seen by the block layer before it becomes
// part of a request. Dev identifies the owning disk through the registry.
type Bio struct {
	Sector   int64
	NrSector int64
	Dev      int64
	Write    bool
}

// Request aggregates one or more bios. It lives in exactly one of a disk's
// prepared, waiting or driver maps at a time.
type Request struct {
	Sector   int64
	NrSector int64
	Dev      int64
	Write    bool
	Bios     []*Bio

	// slotQuark and requestQuark are the store nodes of the request while it
	// sits in a queue, and -1 otherwise. They are set and cleared together.
	slotQuark    int
	requestQuark int
}

const noQuark = -1

func newRequestFromBio(bio *Bio) *Request {
	return &Request{
		Sector:       bio.Sector,
		NrSector:     bio.NrSector,
		Dev:          bio.Dev,
		Write:        bio.Write,
		Bios:         []*Bio{bio},
		slotQuark:    noQuark,
		requestQuark: noQuark,
	}
}

// InQueue reports whether the request currently occupies a queue slot.
func (r *Request) InQueue() bool {
	return r.slotQuark != noQuark && r.requestQuark != noQuark
}

// End returns the first sector after the request.
func (r *Request) End() int64 { return r.Sector + r.NrSector }

// addBio appends bio, growing the request and lowering its start sector
// when the bio begins earlier.
func (r *Request) addBio(bio *Bio) {
	r.Bios = append(r.Bios, bio)
	r.NrSector += bio.NrSector
	if bio.Sector < r.Sector {
		r.Sector = bio.Sector
	}
}

// mergeRequests builds the request that survives an elevator merge. It
// keeps first's flag and queue nodes, starts at the lower sector and covers
// both lengths.
func mergeRequests(first, second *Request) *Request {
	merged := &Request{
		Sector:       min(first.Sector, second.Sector),
		NrSector:     first.NrSector + second.NrSector,
		Dev:          first.Dev,
		Write:        first.Write,
		Bios:         make([]*Bio, 0, len(first.Bios)+len(second.Bios)),
		slotQuark:    first.slotQuark,
		requestQuark: first.requestQuark,
	}
	merged.Bios = append(merged.Bios, first.Bios...)
	merged.Bios = append(merged.Bios, second.Bios...)
	return merged
}

// Disk is the block-layer state of one device.
type Disk struct {
	Dev  int64
	Name string

	prepared map[int64]*Request
	waiting  map[int64]*Request
	driver   map[int64]*Request
	bios     map[int64]*Bio
}

func newDisk(dev int64, name string) *Disk {
	return &Disk{
		Dev:      dev,
		Name:     name,
		prepared: make(map[int64]*Request),
		waiting:  make(map[int64]*Request),
		driver:   make(map[int64]*Request),
		bios:     make(map[int64]*Bio),
	}
}

// WaitingLen and DriverLen return the current queue sizes.
func (d *Disk) WaitingLen() int { return len(d.waiting) }
func (d *Disk) DriverLen() int  { return len(d.driver) }

// PreparedLen returns the number of requests allocated but not inserted.
func (d *Disk) PreparedLen() int { return len(d.prepared) }

// CachedBios returns the number of queued bios not yet claimed by a request.
func (d *Disk) CachedBios() int { return len(d.bios) }

// findBackMergeTarget returns the waiting request that ends where sector
// begins. Ties go to the lowest start sector.
func (d *Disk) findBackMergeTarget(sector int64) *Request {
	var target *Request
	for _, rq := range d.waiting {
		if rq.End() == sector && (target == nil || rq.Sector < target.Sector) {
			target = rq
		}
	}
	return target
}

// registry maps device ids to disks. It is owned by one provider instance.
type registry struct {
	disks map[int64]*Disk
	order []int64 // first-registration order, for stable listings
}

func newRegistry() *registry {
	return &registry{disks: make(map[int64]*Disk)}
}

// register adds a disk, replacing any disk already known under dev.
func (r *registry) register(dev int64, name string) *Disk {
	if _, ok := r.disks[dev]; !ok {
		r.order = append(r.order, dev)
	}
	d := newDisk(dev, name)
	r.disks[dev] = d
	return d
}

func (r *registry) lookup(dev int64) (*Disk, bool) {
	d, ok := r.disks[dev]
	return d, ok
}

func (r *registry) each(fn func(*Disk)) {
	for _, dev := range r.order {
		fn(r.disks[dev])
	}
}
