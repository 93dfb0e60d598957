package allocation

import "fmt"

const CodeConflict = "ALLOCATION_CONFLICT"

// Warnings describes how `overlapping` intersects [start, end].
func Warnings(overlapping []Allocation, start, end string) []Warning {
	warnings := make([]Warning, 0, len(overlapping))
	for _, a := range overlapping {
		name := "Pessoa"
		if a.Person != nil {
			name = a.Person.FullName
		}
		var code, title string
		if a.Job != nil {
			code, title = a.Job.Code, a.Job.Title
		}
		from, to := maxStr(a.AllocationStart, start), minStr(a.AllocationEnd, end)

		warnings = append(warnings, Warning{
			Code:    CodeConflict,
			Message: fmt.Sprintf("%s esta alocado(a) no job %s (%s) de %s a %s", name, code, title, from, to),
			Details: ConflictDetails{
				PersonName:          name,
				ConflictingJobCode:  code,
				ConflictingJobTitle: title,
				OverlapStart:        from,
				OverlapEnd:          to,
			},
		})
	}
	return warnings
}

// PairwiseConflicts returns every overlapping pair of allocations of the same person.
// `allocs` must be sorted by person, then by start date.
func PairwiseConflicts(allocs []Allocation) []PersonConflict {
	conflicts := []PersonConflict{}
	for lo := 0; lo < len(allocs); {
		hi := lo
		for hi < len(allocs) && allocs[hi].PeopleID == allocs[lo].PeopleID {
			hi++
		}
		group := allocs[lo:hi]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if !a.Overlaps(b.AllocationStart, b.AllocationEnd) {
					continue
				}
				pc := PersonConflict{
					PersonID:     a.PeopleID,
					Allocations:  []ConflictEntry{entry(a), entry(b)},
					OverlapStart: maxStr(a.AllocationStart, b.AllocationStart),
					OverlapEnd:   minStr(a.AllocationEnd, b.AllocationEnd),
				}
				if a.Person != nil {
					pc.PersonName = a.Person.FullName
				}
				conflicts = append(conflicts, pc)
			}
		}
		lo = hi
	}
	return conflicts
}

func entry(a Allocation) ConflictEntry {
	e := ConflictEntry{AllocationID: a.ID, JobID: a.JobID, AllocationStart: a.AllocationStart, AllocationEnd: a.AllocationEnd}
	if a.Job != nil {
		e.JobCode, e.JobTitle = a.Job.Code, a.Job.Title
	}
	return e
}

func maxStr(a, b string) string {
	if a > b {
		return a
	}
	return b
}

func minStr(a, b string) string {
	if a < b {
		return a
	}
	return b
}
