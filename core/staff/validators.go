package staff

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/heures/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "one of username or email is required"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to staff attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	commonPasswords   []string
	commonPasswordsMu sync.RWMutex
)

// InitValidators registers the staff validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	validate.RegisterStructValidation(staffStructValidation, NewStaff{}, passwordChange{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, usernameOrEmailText)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords reads the gzipped list of common passwords rejected by the password policy.
func LoadCommonPasswords(fsys fs.FS, name string, logger core.Logger) {
	file, err := fsys.Open(name)
	if err != nil {
		logger.Error(fmt.Sprintf("opening common passwords: %v", err), err)
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		logger.Error(fmt.Sprintf("reading common passwords: %v", err), err)
		return
	}

	pwds := make([]string, 0, 128)
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, pwd)
		}
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()
	if idx := sort.SearchStrings(commonPasswords, pwd); idx < len(commonPasswords) {
		return commonPasswords[idx] == pwd
	}
	return false
}

// Custom Validators

// allRolesValidation checks that provided roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !IsRole(role) {
			return false
		}
	}
	return true
}

// staffStructValidation does struct level validation on NewStaff and passwordChange structs.
func staffStructValidation(sl validator.StructLevel) {
	switch v := sl.Current().Interface().(type) {
	case NewStaff:
		validateUsernameAndEmail(v, sl)
		validatePassword(v.Password, v.Name, v.Username, v.Email, sl)
	case passwordChange:
		validatePassword(v.Password, v.stf.Name, v.stf.Username, v.stf.Email, sl)
	}
}

// validateUsernameAndEmail checks that one of Username or Email is provided
func validateUsernameAndEmail(ns NewStaff, sl validator.StructLevel) {
	if len(ns.Username) == 0 && len(ns.Email) == 0 {
		sl.ReportError(ns.Username, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(ns.Email, "email", "Email", usernameOrEmailTag, "")
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no staff attrs similarity
// - no common password
func validatePassword(pwd, name, uname, email string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		reportErr(pwdNotAllNumTag)
		return
	}

	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		reportErr(pwdComplexityTag)
		return
	}

	getRatio := func(pass, attr string) float64 {
		if attr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(attr, "")).QuickRatio()
	}
	lpwd := strings.ToLower(pwd)
	if getRatio(lpwd, strings.ToLower(name)) >= pwdMaxSim ||
		getRatio(lpwd, uname) >= pwdMaxSim ||
		getRatio(lpwd, email) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
		return
	}

	if isCommonPassword(lpwd) {
		reportErr(pwdNoCommonTag)
	}
}
