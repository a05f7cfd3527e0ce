/**
 * @description
 * Due-date computation for issued slips. The due date is the Nth business day
 * of the month following the issue date, where a business day is any weekday
 * (Saturdays and Sundays are skipped; bank holidays are not modeled, matching
 * the covenant contract this service operates under).
 *
 * @dependencies
 * - time: Standard Go library.
 */

package app

import "time"

// nthBusinessDayOfNextMonth returns the nth business day of the month after
// anchor's month, in anchor's location. n must be >= 1.
func nthBusinessDayOfNextMonth(anchor time.Time, n int) time.Time {
	day := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location()).AddDate(0, 1, 0)

	count := 0
	for {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
			if count == n {
				return day
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}
