package economy

import "sort"

// SubTaskReward is the reward-relevant shape of one composite task
// sub-task, mirrored here (rather than imported) so this package stays
// a leaf the store package does not need to depend on (spec §3
// "Composite task").
type SubTaskReward struct {
	Assignee string
	Reward   int64
}

// CompositeTaskPayouts computes each participant's share once every
// sub-task of a composite task has completed: every assignee collects
// their own sub-task's reward, and the coordinator additionally
// collects coordinator_bonus on top of any sub-task reward they hold
// themselves (spec §3 "When all sub-tasks are completed, distribution
// is atomic").
func CompositeTaskPayouts(subTasks []SubTaskReward, coordinator string, coordinatorBonus int64) map[string]int64 {
	out := map[string]int64{}
	for _, st := range subTasks {
		if st.Assignee == "" {
			continue
		}
		out[st.Assignee] += st.Reward
	}
	if coordinator != "" && coordinatorBonus > 0 {
		out[coordinator] += coordinatorBonus
	}
	return out
}

// CompositeTaskCost is the total SP a composite task's distribution
// draws from its channel's treasury: every sub-task reward plus the
// coordinator bonus.
func CompositeTaskCost(subTasks []SubTaskReward, coordinatorBonus int64) int64 {
	var total int64
	for _, st := range subTasks {
		total += st.Reward
	}
	return total + coordinatorBonus
}

// SkillMatchScore scores a candidate's skills against a sub-task's
// required skills as the fraction of required skills the candidate
// holds (spec §3 "Skills profile ... feeds composite-task skill-match
// scoring"). A sub-task with no required skills is a perfect match for
// anyone.
func SkillMatchScore(required, have []string) float64 {
	if len(required) == 0 {
		return 1
	}
	haveSet := make(map[string]bool, len(have))
	for _, s := range have {
		haveSet[s] = true
	}
	matched := 0
	for _, s := range required {
		if haveSet[s] {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// RankApplicants orders candidate node ids by descending skill-match
// score against a sub-task's required skills, breaking ties
// lexicographically by node id so every node derives the same order
// from the same skills profiles.
func RankApplicants(required []string, skills map[string][]string) []string {
	out := make([]string, 0, len(skills))
	for node := range skills {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		si := SkillMatchScore(required, skills[out[i]])
		sj := SkillMatchScore(required, skills[out[j]])
		if si != sj {
			return si > sj
		}
		return out[i] < out[j]
	})
	return out
}
