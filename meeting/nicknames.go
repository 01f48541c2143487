package meeting

// nicknameGroups lists interchangeable first-name forms. A name may sit in several groups
// (alex, sam).
var nicknameGroups = [][]string{
	{"michael", "mike", "mikey", "mick", "mickey"},
	{"christopher", "chris", "kit"},
	{"christine", "christina", "chris", "tina"},
	{"robert", "bob", "bobby", "rob", "robbie", "bert"},
	{"william", "will", "bill", "billy", "liam"},
	{"richard", "rick", "ricky", "rich", "dick"},
	{"james", "jim", "jimmy", "jamie"},
	{"john", "jack", "johnny"},
	{"jonathan", "jon", "jonny"},
	{"joseph", "joe", "joey"},
	{"thomas", "tom", "tommy"},
	{"daniel", "dan", "danny"},
	{"david", "dave", "davey"},
	{"matthew", "matt"},
	{"anthony", "tony"},
	{"andrew", "andy", "drew"},
	{"stephen", "steven", "steve"},
	{"nicholas", "nick", "nicky"},
	{"benjamin", "ben", "benny"},
	{"samuel", "sam", "sammy"},
	{"samantha", "sam", "sammy"},
	{"alexander", "alex", "xander"},
	{"alexandra", "alex", "lexi", "sandra"},
	{"edward", "ed", "eddie", "ted", "ned"},
	{"charles", "charlie", "chuck"},
	{"timothy", "tim", "timmy"},
	{"gregory", "greg"},
	{"kenneth", "ken", "kenny"},
	{"ronald", "ron", "ronnie"},
	{"donald", "don", "donny"},
	{"patrick", "pat", "paddy"},
	{"patricia", "pat", "patty", "trish"},
	{"elizabeth", "liz", "beth", "betty", "eliza", "lizzie"},
	{"katherine", "kate", "katie", "kathy", "kat"},
	{"catherine", "cate", "cathy", "cat"},
	{"jennifer", "jen", "jenny"},
	{"jessica", "jess", "jessie"},
	{"margaret", "maggie", "meg", "peggy"},
	{"rebecca", "becky", "becca"},
	{"susan", "sue", "susie"},
	{"victoria", "vicky", "tori"},
	{"deborah", "deb", "debbie"},
	{"emily", "em", "emmy"},
	{"abigail", "abby"},
	{"olivia", "liv"},
}

var nicknameIndex = buildNicknameIndex(nicknameGroups)

func buildNicknameIndex(groups [][]string) map[string][]int {
	idx := make(map[string][]int)
	for gi, g := range groups {
		for _, n := range g {
			idx[n] = append(idx[n], gi)
		}
	}
	return idx
}

// nicknameVariants returns every form sharing a group with name, excluding name itself.
func nicknameVariants(name string) map[string]struct{} {
	groups := nicknameIndex[name]
	if len(groups) == 0 {
		return nil
	}
	out := make(map[string]struct{})
	for _, gi := range groups {
		for _, n := range nicknameGroups[gi] {
			if n != name {
				out[n] = struct{}{}
			}
		}
	}
	return out
}
