package main

import (
	"regexp"
	"strings"
)

// The rule evaluators classify a story against the six INVEST criteria
// using independent lexical heuristics. Each evaluator is deterministic,
// side-effect free, and returns the verdict plus remediation suggestions.
// A false verdict always carries at least one suggestion.

var (
	dependencyPatterns = compilePatterns(
		`\bdepende\b`, `\brequiere\b`, `\bnecesita\b`,
		`\bantes de\b`, `\bdespués de\b`, `\bjunto con\b`,
		`\buna vez que\b`, `\bcuando.*esté\b`,
	)
	componentPatterns = compilePatterns(
		`\bel sistema ya debe\b`, `\bel usuario debe tener\b`,
		`\bsi existe\b`, `\bsi está configurado\b`,
	)

	rigidPatterns = compilePatterns(
		`\bdebe ser exactamente\b`, `\bsolo puede\b`, `\búnicamente\b`,
		`\bexactamente como\b`, `\bsin excepción\b`, `\bobligatoriamente\b`,
	)
	implementationPatterns = compilePatterns(
		`\bbase de datos\b`, `\bapi\b`, `\balgorithm\b`, `\bsql\b`,
		`\bframework\b`, `\btecnología\b`, `\blibrería\b`,
	)

	valuePatterns = compilePatterns(
		`\bpara que\b`, `\bcon el fin de\b`, `\bpara poder\b`,
		`\bpermitirme\b`, `\bayudarme\b`, `\bmejorar\b`,
		`\bpara\s+\w+`,
	)
	noValuePatterns = compilePatterns(
		`\bsolo por\b`, `\bsin razón\b`, `\bporque sí\b`, `\bpor completar\b`,
	)
	technicalTaskPatterns = compilePatterns(
		`\bconfigurar servidor\b`, `\boptimizar base de datos\b`,
		`\brefactorizar\b`, `\bmantener código\b`,
	)
	storyShapePattern = regexp.MustCompile(`\bcomo\s+.*\s+quiero\s+.*\s+(para|con el fin de)`)

	vaguePatterns = compilePatterns(
		`\bmejor\b`, `\boptimizar\b`, `\bmás eficiente\b`,
		`\badecuado\b`, `\bapropiado\b`, `\bfácil de usar\b`,
	)
	acceptanceHintPatterns = compilePatterns(
		`\bdebe\b`, `\btiene que\b`, `\bes necesario\b`,
		`\bpermite\b`, `\bmuestra\b`, `\bvalida\b`,
	)
	unknownComplexityPatterns = compilePatterns(
		`\bintegración\b`, `\bmigración\b`, `\bcompatibilidad\b`,
		`\brendimiento\b`, `\bescalabilidad\b`,
	)

	multipleActionPatterns = compilePatterns(
		`\by\s+(?:también|además)\b`, `\btambién\b`, `\badicionalmente\b`,
		`\by\s+poder\b`, `\by\s+además\b`, `\by\s+después\b`,
	)
	complexActionPatterns = compilePatterns(
		`\bgestionar\b`, `\badministrar\b`, `\bprocesar\b`,
		`\bintegrar\b`, `\bsincronizar\b`, `\bmigrar\b`,
	)
	actionVerbs = []string{"crear", "editar", "eliminar", "ver", "buscar", "filtrar", "exportar", "importar"}

	untestablePatterns = compilePatterns(
		`\bmejor\b`, `\bmás fácil\b`, `\bmás rápido\b`,
		`\bintuitivo\b`, `\bamigable\b`,
	)
	verifiableActionPatterns = compilePatterns(
		`\bver\b`, `\bcrear\b`, `\beditar\b`, `\beliminar\b`,
		`\brecibir\b`, `\benviar\b`, `\bguardar\b`, `\bcargar\b`,
	)
	testableElementPatterns = compilePatterns(
		`\bmostrar\b`, `\bvalidar\b`, `\bpermitir\b`,
		`\bredireccionar\b`, `\bnotificar\b`, `\bconfirmar\b`,
	)
)

// compilePatterns compiles the marker expressions, translating edge \b
// into Unicode-aware boundaries. RE2's \b only recognizes ASCII word
// characters, so a plain \b next to an accented letter never matches.
func compilePatterns(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		if strings.HasPrefix(expr, `\b`) {
			expr = `(?:^|[^\p{L}\p{N}_])` + expr[2:]
		}
		if strings.HasSuffix(expr, `\b`) {
			expr = expr[:len(expr)-2] + `(?:[^\p{L}\p{N}_]|$)`
		}
		patterns[i] = regexp.MustCompile(expr)
	}
	return patterns
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// EvaluateIndependent fails when the story depends on other stories or
// preconditions another component.
func EvaluateIndependent(story string) (bool, []string) {
	var suggestions []string
	lower := strings.ToLower(story)

	hasDependencies := anyMatch(dependencyPatterns, lower)
	if hasDependencies {
		suggestions = append(suggestions, "Revisar dependencias explícitas con otras historias")
	}

	mentionsComponents := anyMatch(componentPatterns, lower)
	if mentionsComponents {
		suggestions = append(suggestions, "Considerar dividir en historias más independientes")
	}

	independent := !(hasDependencies || mentionsComponents)
	if !independent && len(suggestions) == 0 {
		suggestions = append(suggestions, "Redefinir la historia para que sea más independiente")
	}
	return independent, suggestions
}

// EvaluateNegotiable fails on rigidity markers or implementation detail.
// Excessive length only adds a suggestion, it never fails the criterion.
func EvaluateNegotiable(story string) (bool, []string) {
	var suggestions []string
	lower := strings.ToLower(story)

	rigid := anyMatch(rigidPatterns, lower)
	if rigid {
		suggestions = append(suggestions, "Hacer la historia más flexible en términos de implementación")
	}

	implementation := anyMatch(implementationPatterns, lower)
	if implementation {
		suggestions = append(suggestions, "Evitar especificar detalles técnicos de implementación")
	}

	if CountWords(story) > 30 {
		suggestions = append(suggestions, "Considerar simplificar para permitir más flexibilidad")
	}

	negotiable := !(rigid || implementation)
	if !negotiable && len(suggestions) == 0 {
		suggestions = append(suggestions, "Reformular para permitir diferentes enfoques de solución")
	}
	return negotiable, suggestions
}

// EvaluateValuable requires a benefit justification and rejects stories
// that state no value or read as purely technical tasks.
func EvaluateValuable(story string) (bool, []string) {
	var suggestions []string
	lower := strings.ToLower(story)

	hasValue := anyMatch(valuePatterns, lower)
	if !hasValue {
		suggestions = append(suggestions, "Incluir el beneficio o valor que aporta al usuario")
	}

	if !storyShapePattern.MatchString(lower) {
		suggestions = append(suggestions, "Usar formato: 'Como [rol] quiero [funcionalidad] para [beneficio]'")
	}

	noValue := anyMatch(noValuePatterns, lower)
	if noValue {
		suggestions = append(suggestions, "Definir claramente el valor de negocio de esta funcionalidad")
	}

	tooTechnical := anyMatch(technicalTaskPatterns, lower)
	if tooTechnical {
		suggestions = append(suggestions, "Enfocar en el valor del usuario final, no en tareas técnicas")
	}

	valuable := hasValue && !(noValue || tooTechnical)
	if !valuable && len(suggestions) == 0 {
		suggestions = append(suggestions, "Clarificar el valor que esta historia aporta al usuario o negocio")
	}
	return valuable, suggestions
}

// EvaluateEstimable fails on vague qualifiers, open-ended complexity
// terms, or fewer than eight words.
func EvaluateEstimable(story string) (bool, []string) {
	var suggestions []string
	lower := strings.ToLower(story)
	words := CountWords(story)

	vague := anyMatch(vaguePatterns, lower)
	if vague {
		suggestions = append(suggestions, "Definir criterios específicos y medibles")
	}

	if words < 8 {
		suggestions = append(suggestions, "Agregar más detalles para facilitar la estimación")
	}

	if !anyMatch(acceptanceHintPatterns, lower) && words > 5 {
		suggestions = append(suggestions, "Incluir criterios de aceptación claros")
	}

	unknownComplexity := anyMatch(unknownComplexityPatterns, lower)
	if unknownComplexity {
		suggestions = append(suggestions, "Investigar y especificar los requisitos técnicos")
	}

	estimable := !(vague || unknownComplexity) && words >= 8
	if !estimable && len(suggestions) == 0 {
		suggestions = append(suggestions, "Agregar más contexto para permitir estimación precisa")
	}
	return estimable, suggestions
}

// EvaluateSmall fails when the story is long, bundles multiple actions,
// or names more than one action verb.
func EvaluateSmall(story string) (bool, []string) {
	var suggestions []string
	lower := strings.ToLower(story)
	words := CountWords(story)

	if words > 25 {
		suggestions = append(suggestions, "Considerar dividir en historias más pequeñas")
	}

	multipleActions := anyMatch(multipleActionPatterns, lower)
	if multipleActions {
		suggestions = append(suggestions, "Separar en múltiples historias independientes")
	}

	foundVerbs := 0
	for _, verb := range actionVerbs {
		if strings.Contains(lower, verb) {
			foundVerbs++
		}
	}
	if foundVerbs > 1 {
		suggestions = append(suggestions, "Enfocarse en una sola acción principal por historia")
	}

	if anyMatch(complexActionPatterns, lower) {
		suggestions = append(suggestions, "Desglosar las acciones complejas en pasos más simples")
	}

	small := words <= 25 && !multipleActions && foundVerbs <= 1
	if !small && len(suggestions) == 0 {
		suggestions = append(suggestions, "Simplificar y enfocar en una funcionalidad específica")
	}
	return small, suggestions
}

// EvaluateTestable requires a verifiable action or testable element, no
// subjective qualifiers, and at least six words.
func EvaluateTestable(story string) (bool, []string) {
	var suggestions []string
	lower := strings.ToLower(story)
	words := CountWords(story)

	untestable := anyMatch(untestablePatterns, lower)
	if untestable {
		suggestions = append(suggestions, "Reemplazar términos subjetivos con criterios medibles")
	}

	verifiable := anyMatch(verifiableActionPatterns, lower)
	if !verifiable {
		suggestions = append(suggestions, "Incluir acciones específicas que se puedan verificar")
	}

	if words < 6 {
		suggestions = append(suggestions, "Agregar más detalles para definir criterios de prueba")
	}

	testableElements := anyMatch(testableElementPatterns, lower)

	testable := (verifiable || testableElements) && !untestable && words >= 6
	if !testable && len(suggestions) == 0 {
		suggestions = append(suggestions, "Definir resultados específicos que se puedan probar")
	}
	return testable, suggestions
}

// criterionEvaluator pairs a criterion with its rule function.
type criterionEvaluator struct {
	Criterion Criterion
	Evaluate  func(string) (bool, []string)
}

// ruleEvaluators lists the six evaluators in fixed order.
var ruleEvaluators = []criterionEvaluator{
	{Independent, EvaluateIndependent},
	{Negotiable, EvaluateNegotiable},
	{Valuable, EvaluateValuable},
	{Estimable, EvaluateEstimable},
	{Small, EvaluateSmall},
	{Testable, EvaluateTestable},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs and normalizes curly quotes.
func CleanText(text string) string {
	text = whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
	replacer := strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	return replacer.Replace(text)
}

// CountWords counts whitespace-separated words; empty text counts zero.
func CountWords(text string) int {
	cleaned := CleanText(text)
	if cleaned == "" {
		return 0
	}
	return len(strings.Split(cleaned, " "))
}

// ValidateStoryFormat checks the basic role + intent shape: the text must
// contain "como" and one desire-expressing token.
func ValidateStoryFormat(story string) bool {
	lower := strings.ToLower(strings.TrimSpace(story))
	if lower == "" {
		return false
	}
	if !strings.Contains(lower, "como") {
		return false
	}
	for _, word := range []string{"quiero", "necesito", "deseo", "quisiera"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

var userRolePattern = regexp.MustCompile(`como\s+([^,\s]+(?:\s+[^,\s]+)*?)(?:\s+quiero|\s+necesito|\s+deseo|\s+quisiera)`)

// ExtractUserRole pulls the role out of "Como [rol] quiero ...".
// Falls back to "usuario" when the story has no recognizable role.
func ExtractUserRole(story string) string {
	if !ValidateStoryFormat(story) {
		return "usuario"
	}
	match := userRolePattern.FindStringSubmatch(strings.ToLower(story))
	if match == nil {
		return "usuario"
	}
	return strings.TrimSpace(match[1])
}
