package iostate

import (
	"lttng_iostate/internal/trace"
)

// blockFields are the fields most block events carry.
type blockFields struct {
	dev      int64
	sector   int64
	nrSector int64
	write    bool
}

// readBlockFields reads dev and sector, plus nr_sector and rwbs when full
// is set.
func (p *Provider) readBlockFields(ev *trace.Event, full bool) (blockFields, error) {
	var (
		bf  blockFields
		err error
	)
	if bf.dev, err = ev.Fields.Int(p.fields.Dev); err != nil {
		return bf, err
	}
	if bf.sector, err = ev.Fields.Int(p.fields.Sector); err != nil {
		return bf, err
	}
	if !full {
		return bf, nil
	}
	if bf.nrSector, err = ev.Fields.Int(p.fields.NrSector); err != nil {
		return bf, err
	}
	rwbs, err := ev.Fields.Int(p.fields.Rwbs)
	if err != nil {
		return bf, err
	}
	bf.write = rwbs%2 != 0
	return bf, nil
}

// handleStatedumpBlockDevice registers a disk.
//
// Trace Event Details:
//   - Event Name: lttng_statedump_block_device
//   - Fields: dev (device id), diskname (string)
//
// A device registered twice keeps only the latest name and starts over
// with empty queues.
func (p *Provider) handleStatedumpBlockDevice(ev *trace.Event) (bool, error) {
	dev, err := ev.Fields.Int(p.fields.Dev)
	if err != nil {
		return false, err
	}
	name, err := ev.Fields.Str(p.fields.DiskName)
	if err != nil {
		return false, err
	}
	if old, ok := p.disks.lookup(dev); ok && old.Name != name {
		p.log.Debug().Int64("dev", dev).Str("old", old.Name).Str("new", name).Msg("Block device re-registered")
	}
	p.disks.register(dev, name)
	return true, nil
}

// handleBioQueue caches a bio until a request is allocated for it.
//
// Trace Event Details:
//   - Event Name: block_bio_queue
//   - Fields: dev, sector, nr_sector, rwbs
func (p *Provider) handleBioQueue(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, true)
	if err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok || bf.nrSector == 0 {
		return false, nil
	}
	disk.bios[bf.sector] = &Bio{Sector: bf.sector, NrSector: bf.nrSector, Dev: bf.dev, Write: bf.write}
	return true, nil
}

// handleGetRq prepares a request. Nothing is written to the store until the
// request is inserted.
//
// Trace Event Details:
//   - Event Name: block_getrq
//   - Fields: dev, sector, nr_sector, rwbs
//
// Zero-length events are probes that allocate nothing and are ignored.
func (p *Provider) handleGetRq(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, true)
	if err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok || bf.nrSector == 0 {
		return false, nil
	}

	bio, cached := disk.bios[bf.sector]
	if cached {
		delete(disk.bios, bf.sector)
	} else {
		bio = &Bio{Sector: bf.sector, NrSector: bf.nrSector, Dev: bf.dev, Write: bf.write}
	}
	disk.prepared[bf.sector] = newRequestFromBio(bio)
	return true, nil
}

// handleRqInsert moves a prepared request to the waiting queue.
//
// Trace Event Details:
//   - Event Name: block_rq_insert
//   - Fields: dev, sector
func (p *Provider) handleRqInsert(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, false)
	if err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok {
		return false, nil
	}
	rq, ok := disk.prepared[bf.sector]
	if !ok {
		return false, nil
	}

	delete(disk.prepared, bf.sector)
	disk.waiting[rq.Sector] = rq

	w := p.writer(ev.Timestamp)
	if err := w.insertInQueue(rq, disk.Name, waitingQueue); err != nil {
		return false, err
	}
	return true, p.updateQueuesLength(w, disk)
}

// handleElvMergeRequests merges two waiting requests into one.
//
// Trace Event Details:
//   - Event Name: elv_merge_requests
//   - Fields: dev, rq_sector (request kept), nextrq_sector (request absorbed)
//
// The merged request takes over the first request's slot and node as they
// are; only the absorbed request is taken out of the queue, with MergedIn
// pointing at the merged request.
func (p *Provider) handleElvMergeRequests(ev *trace.Event) (bool, error) {
	dev, err := ev.Fields.Int(p.fields.Dev)
	if err != nil {
		return false, err
	}
	sector1, err := ev.Fields.Int(p.fields.RqSector)
	if err != nil {
		return false, err
	}
	sector2, err := ev.Fields.Int(p.fields.NextRqSector)
	if err != nil {
		return false, err
	}

	disk, ok := p.disks.lookup(dev)
	if !ok {
		return false, nil
	}
	first, ok := disk.waiting[sector1]
	if !ok {
		return false, nil
	}
	second, ok := disk.waiting[sector2]
	if !ok || second == first {
		return false, nil
	}

	delete(disk.waiting, first.Sector)
	delete(disk.waiting, second.Sector)
	merged := mergeRequests(first, second)
	disk.waiting[merged.Sector] = merged

	w := p.writer(ev.Timestamp)
	if err := w.removeFromQueue(second, merged); err != nil {
		return false, err
	}
	p.opts.Recorder.RecordMerge(disk.Name, ev.Kind)
	return true, p.updateQueuesLength(w, disk)
}

// handleBioFrontMerge adds a bio in front of a waiting request.
//
// Trace Event Details:
//   - Event Name: block_bio_frontmerge
//   - Fields: dev, sector (of the bio), rq_sector (of the request), nr_sector, rwbs
func (p *Provider) handleBioFrontMerge(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, true)
	if err != nil {
		return false, err
	}
	rqSector, err := ev.Fields.Int(p.fields.RqSector)
	if err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok {
		return false, nil
	}
	rq, ok := disk.waiting[rqSector]
	if !ok {
		return false, nil
	}

	bio := &Bio{Sector: bf.sector, NrSector: bf.nrSector, Dev: bf.dev, Write: bf.write}
	return p.growWaitingRequest(ev, disk, rq, bio)
}

// handleBioBackMerge appends a bio to the waiting request that ends where
// the bio starts.
//
// Trace Event Details:
//   - Event Name: block_bio_backmerge
//   - Fields: dev, sector, nr_sector, rwbs
func (p *Provider) handleBioBackMerge(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, true)
	if err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok || bf.nrSector == 0 {
		return false, nil
	}
	rq := disk.findBackMergeTarget(bf.sector)
	if rq == nil {
		return false, nil
	}

	bio := &Bio{Sector: bf.sector, NrSector: bf.nrSector, Dev: bf.dev, Write: bf.write}
	return p.growWaitingRequest(ev, disk, rq, bio)
}

// growWaitingRequest takes rq out of the waiting queue, adds bio and shows
// it again under its possibly lower sector. A merge that would move rq onto
// the sector of another waiting request is skipped.
func (p *Provider) growWaitingRequest(ev *trace.Event, disk *Disk, rq *Request, bio *Bio) (bool, error) {
	newSector := min(rq.Sector, bio.Sector)
	if other, ok := disk.waiting[newSector]; ok && other != rq {
		p.log.Debug().
			Str("disk", disk.Name).
			Int64("sector", rq.Sector).
			Int64("bio_sector", bio.Sector).
			Int64("ts", ev.Timestamp).
			Msg("Bio merge would collide with another waiting request, skipped")
		return false, nil
	}

	w := p.writer(ev.Timestamp)
	if err := w.removeFromQueue(rq, nil); err != nil {
		return false, err
	}
	delete(disk.waiting, rq.Sector)
	rq.addBio(bio)
	disk.waiting[rq.Sector] = rq
	if err := w.insertInQueue(rq, disk.Name, waitingQueue); err != nil {
		return false, err
	}
	p.opts.Recorder.RecordMerge(disk.Name, ev.Kind)
	return true, nil
}

// handleRqIssue moves a waiting request to the driver queue.
//
// Trace Event Details:
//   - Event Name: block_rq_issue
//   - Fields: dev, sector, nr_sector
func (p *Provider) handleRqIssue(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, false)
	if err != nil {
		return false, err
	}
	if bf.nrSector, err = ev.Fields.Int(p.fields.NrSector); err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok || bf.nrSector == 0 {
		return false, nil
	}
	rq, ok := disk.waiting[bf.sector]
	if !ok {
		return false, nil
	}

	w := p.writer(ev.Timestamp)
	if err := w.removeFromQueue(rq, nil); err != nil {
		return false, err
	}
	delete(disk.waiting, rq.Sector)
	disk.driver[rq.Sector] = rq
	if err := w.insertInQueue(rq, disk.Name, driverQueue); err != nil {
		return false, err
	}
	return true, p.updateQueuesLength(w, disk)
}

// handleRqComplete counts the completed sectors and retires the request
// from the driver queue.
//
// Trace Event Details:
//   - Event Name: block_rq_complete
//   - Fields: dev, sector, nr_sector, rwbs (even: read, odd: write)
//
// Completions of requests that were never seen dispatched still count.
func (p *Provider) handleRqComplete(ev *trace.Event) (bool, error) {
	bf, err := p.readBlockFields(ev, true)
	if err != nil {
		return false, err
	}
	disk, ok := p.disks.lookup(bf.dev)
	if !ok {
		return false, nil
	}

	w := p.writer(ev.Timestamp)
	counter := AttrSectorsRead
	if bf.write {
		counter = AttrSectorsWritten
	}
	quark := w.ss.QuarkRelativeAndAdd(w.diskQuark(disk.Name), counter)
	if _, err := w.increment(quark, bf.nrSector); err != nil {
		return false, err
	}
	p.opts.Recorder.RecordSectors(disk.Name, bf.write, bf.nrSector)

	rq, ok := disk.driver[bf.sector]
	if !ok {
		return true, nil
	}
	if err := w.removeFromQueue(rq, nil); err != nil {
		return false, err
	}
	delete(disk.driver, bf.sector)
	return true, p.updateQueuesLength(w, disk)
}

func (p *Provider) updateQueuesLength(w *stateWriter, disk *Disk) error {
	if err := w.updateQueuesLength(disk); err != nil {
		return err
	}
	p.opts.Recorder.RecordQueueLengths(disk.Name, disk.WaitingLen(), disk.DriverLen())
	return nil
}
