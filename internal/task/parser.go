package task

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Iron-Ham/paragent/internal/errors"
)

// Block markers of the batch input format.
const (
	TaskMarker    = "---TASK---"
	ContentMarker = "---CONTENT---"
)

// validate is a singleton validator instance for Spec field domains.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their batch key rather than the Go field name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// ParseReader reads the whole batch from r and parses it.
func ParseReader(r io.Reader, defaults Defaults) ([]Spec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read task batch")
	}
	return Parse(string(data), defaults)
}

// Parse turns raw batch text into task specs, preserving input order.
//
// Each block starts with a ---TASK--- line followed by "key: value" metadata
// lines, a ---CONTENT--- line, and the prompt text, which runs until the next
// ---TASK--- line or the end of input. Unknown keys are ignored.
func Parse(input string, defaults Defaults) ([]Spec, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errors.NewParseError(errors.ErrEmptyInput, "parallel config is empty")
	}

	blocks := splitBlocks(input)
	if len(blocks) == 0 {
		return nil, errors.NewParseError(errors.ErrEmptyInput, "no tasks found")
	}

	specs := make([]Spec, 0, len(blocks))
	seen := make(map[string]bool, len(blocks))
	for i, block := range blocks {
		index := i + 1
		spec, err := parseBlock(block, index, defaults)
		if err != nil {
			return nil, err
		}
		if seen[spec.ID] {
			return nil, errors.NewParseError(errors.ErrDuplicateID, "duplicate id: "+spec.ID).
				WithBlock(index).WithTaskID(spec.ID).WithField("id")
		}
		seen[spec.ID] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// rawBlock holds the lines of one task block split at the content marker.
type rawBlock struct {
	meta       []string
	content    []string
	hasContent bool
}

// splitBlocks groups input lines into task blocks. Text before the first task
// marker is ignored.
func splitBlocks(input string) []rawBlock {
	var blocks []rawBlock
	var current *rawBlock

	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSuffix(line, "\r")
		marker := strings.TrimSpace(line)
		switch {
		case marker == TaskMarker:
			blocks = append(blocks, rawBlock{})
			current = &blocks[len(blocks)-1]
		case current == nil:
			continue
		case marker == ContentMarker && !current.hasContent:
			current.hasContent = true
		case current.hasContent:
			current.content = append(current.content, line)
		default:
			current.meta = append(current.meta, line)
		}
	}
	return blocks
}

func parseBlock(block rawBlock, index int, defaults Defaults) (Spec, error) {
	spec := Spec{
		Backend:       strings.ToLower(strings.TrimSpace(defaults.Backend)),
		Workdir:       defaults.Workdir,
		Mode:          ModeNew,
		CompressModel: DefaultCompressModel,
		CompressRatio: DefaultCompressRatio,
	}
	if spec.Workdir == "" {
		spec.Workdir = DefaultWorkdir
	}

	hasSession := false
	for _, line := range block.meta {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "id":
			spec.ID = value
		case "backend":
			if value != "" {
				spec.Backend = strings.ToLower(value)
			}
		case "model":
			spec.Model = value
		case "reasoning_effort":
			spec.ReasoningEffort = strings.ToLower(value)
		case "workdir":
			if value != "" {
				spec.Workdir = value
			}
		case "dependencies":
			spec.Dependencies = appendUnique(spec.Dependencies, splitList(value)...)
		case "images":
			spec.Images = append(spec.Images, splitList(value)...)
		case "session_id":
			hasSession = true
			spec.SessionID = value
			spec.Mode = ModeResume
		case "compress":
			spec.Compress = parseBool(value)
		case "compress_model":
			if value != "" {
				spec.CompressModel = value
			}
		case "compress_ratio":
			ratio, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Spec{}, errors.NewParseError(errors.ErrInvalidField, fmt.Sprintf("invalid compress_ratio: %q", value)).
					WithBlock(index).WithTaskID(spec.ID).WithField("compress_ratio")
			}
			spec.CompressRatio = ratio
		}
	}

	if spec.ID == "" {
		return Spec{}, errors.NewParseError(errors.ErrMissingField, "missing id field").
			WithBlock(index).WithField("id")
	}
	if !block.hasContent {
		return Spec{}, errors.NewParseError(errors.ErrMissingField, "missing "+ContentMarker+" separator").
			WithBlock(index).WithTaskID(spec.ID).WithField("content")
	}
	spec.Content = strings.TrimSpace(strings.Join(block.content, "\n"))
	if spec.Content == "" {
		return Spec{}, errors.NewParseError(errors.ErrMissingField, "missing content").
			WithBlock(index).WithTaskID(spec.ID).WithField("content")
	}
	if hasSession && spec.SessionID == "" {
		return Spec{}, errors.NewParseError(errors.ErrMissingField, "empty session_id").
			WithBlock(index).WithTaskID(spec.ID).WithField("session_id")
	}

	if err := validate.Struct(spec); err != nil {
		return Spec{}, fieldError(err, index, spec.ID)
	}
	return spec, nil
}

// fieldError converts the first validator failure into a ParseError.
func fieldError(err error, index int, id string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewParseError(errors.ErrInvalidField, err.Error()).WithBlock(index).WithTaskID(id)
	}

	fe := verrs[0]
	kind := errors.ErrInvalidField
	var msg string
	switch fe.Tag() {
	case "required":
		kind = errors.ErrMissingField
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		msg = fmt.Sprintf("unsupported %s %q (want one of: %s)", fe.Field(), fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt", "lte":
		msg = fmt.Sprintf("%s must be between 0 and 1 (got %v)", fe.Field(), fe.Value())
	default:
		msg = fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	return errors.NewParseError(kind, msg).WithBlock(index).WithTaskID(id).WithField(fe.Field())
}

// splitList splits a comma-separated value, trimming elements and dropping
// empty ones.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range list {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, item)
		}
	}
	return list
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
