// Package cli provides the command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkoval/dirindex/index"
	"github.com/mkoval/dirindex/internal/config"
	"github.com/mkoval/dirindex/internal/output"
	"github.com/mkoval/dirindex/internal/services/clipboard"
	"github.com/mkoval/dirindex/internal/utils"
	"github.com/mkoval/dirindex/search"
	"github.com/mkoval/dirindex/serial"
	"github.com/mkoval/dirindex/types"
)

const (
	rootUse              = "dirindex"
	rootShortDescription = "dirindex command line interface"
	rootLongDescription  = `dirindex builds a size-annotated snapshot of a directory subtree,
honoring .gitignore exclusion rules, and answers fuzzy name queries over it.
Use --format to select raw or json output.`

	indexUse              = "index [paths...]"
	indexAlias            = "i"
	indexShortDescription = "index directories and persist their trees (" + indexAlias + ")"
	indexLongDescription  = `Walk one or more directories in parallel, aggregate sizes, and write
each resulting tree to a versioned snapshot file.`
	indexUsageExample = `  # Index the current directory into file_tree.json
  dirindex index

  # Index two projects, following symlinks
  dirindex index --follow-symlinks ~/src/alpha ~/src/beta`

	treeUse              = "tree [path]"
	treeAlias            = "t"
	treeShortDescription = "display a directory tree with sizes (" + treeAlias + ")"
	treeLongDescription  = `Build and render the tree of a directory without persisting it.
Use --format to select raw or json output.`
	treeUsageExample = `  # Render the tree with box-drawing connectors
  dirindex tree ./cmd

  # Include entries matched by .gitignore
  dirindex tree --no-gitignore .`

	searchUse              = "search <query> [path]"
	searchAlias            = "s"
	searchShortDescription = "fuzzy-search node names in an indexed tree (" + searchAlias + ")"
	searchLongDescription  = `Match the query against node names as a case-insensitive subsequence
and print results ranked by similarity. The tree is built from the given
path, or loaded from a snapshot file with --from.`
	searchUsageExample = `  # Search a freshly built index of the current directory
  dirindex search readme

  # Search a previously written snapshot
  dirindex search readme --from file_tree.json --limit 10`

	versionFlagName        = "version"
	versionFlagDescription = "display application version"
	versionTemplate        = "dirindex version: %s\n"

	noGitignoreFlagName        = "no-gitignore"
	noGitignoreFlagDescription = "do not apply .gitignore exclusion rules"
	followSymlinksFlagName     = "follow-symlinks"
	followSymlinksDescription  = "resolve symlinks and recurse into their targets"
	parallelismFlagName        = "parallelism"
	parallelismFlagDescription = "maximum concurrent directory scans (0 = auto)"
	formatFlagName             = "format"
	formatFlagDescription      = "output format (raw or json)"
	outFlagName                = "out"
	outFlagDescription         = "snapshot file to write"
	fromFlagName               = "from"
	fromFlagDescription        = "snapshot file to load instead of building"
	limitFlagName              = "limit"
	limitFlagDescription       = "maximum number of results (0 = all)"
	copyFlagName               = "copy"
	copyFlagDescription        = "copy the output to the system clipboard"
	configFlagName             = "config"
	configFlagDescription      = "path to a configuration file"

	defaultPath         = "."
	defaultSnapshotName = "file_tree.json"

	invalidFormatMessage     = "invalid format value '%s'"
	errorAbsolutePathFormat  = "abs failed for '%s': %w"
	errorPathMissingFormat   = "path '%s' does not exist"
	errorStatFormat          = "stat failed for '%s': %w"
	errorNoValidPaths        = "no valid paths"
	errorWriteSnapshotFormat = "writing snapshot %s: %w"
	errorReadSnapshotFormat  = "reading snapshot %s: %w"
	errorClipboardFormat     = "copying output to clipboard: %w"

	warningLogFormat      = "%s: %s"
	indexedLogFormat      = "indexed %s: total %s in %s, snapshot %s"
	snapshotPermissions   = 0o644
	emptyQueryLogMessage  = "empty query matches nothing"
	warningCountLogFormat = "%d warning(s) during build of %s"
)

// isSupportedFormat reports whether the provided format is recognized.
func isSupportedFormat(format string) bool {
	switch format {
	case types.FormatRaw, types.FormatJSON:
		return true
	default:
		return false
	}
}

// Execute runs the dirindex application using the provided logger for
// diagnostics. Interrupt signals cancel in-flight builds.
func Execute(logger *zap.Logger) error {
	signalContext, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	rootCommand := createRootCommand(logger)
	return rootCommand.ExecuteContext(signalContext)
}

// createRootCommand builds the root Cobra command.
func createRootCommand(logger *zap.Logger) *cobra.Command {
	var showVersion bool

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.AddCommand(
		createIndexCommand(logger),
		createTreeCommand(logger),
		createSearchCommand(logger),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// buildFlags stores flag values shared by tree-producing commands.
type buildFlags struct {
	disableGitignore bool
	followSymlinks   bool
	parallelism      int
	configPath       string
}

// addBuildFlags registers build-related flags on the command.
func addBuildFlags(command *cobra.Command, flags *buildFlags) {
	command.Flags().BoolVar(&flags.disableGitignore, noGitignoreFlagName, false, noGitignoreFlagDescription)
	command.Flags().BoolVar(&flags.followSymlinks, followSymlinksFlagName, false, followSymlinksDescription)
	command.Flags().IntVar(&flags.parallelism, parallelismFlagName, 0, parallelismFlagDescription)
	command.Flags().StringVar(&flags.configPath, configFlagName, "", configFlagDescription)
}

// resolveBuildOptions combines hardcoded defaults, configuration file
// values, and explicitly set flags, in ascending precedence.
func resolveBuildOptions(command *cobra.Command, flags buildFlags, configuration config.IndexCommandConfiguration) index.Options {
	options := index.DefaultOptions()
	if configuration.RespectGitignore != nil {
		options.RespectGitignore = *configuration.RespectGitignore
	}
	if configuration.FollowSymlinks != nil {
		options.FollowSymlinks = *configuration.FollowSymlinks
	}
	if configuration.MaxParallelism != nil {
		options.MaxParallelism = *configuration.MaxParallelism
	}
	if command.Flags().Changed(noGitignoreFlagName) {
		options.RespectGitignore = !flags.disableGitignore
	}
	if command.Flags().Changed(followSymlinksFlagName) {
		options.FollowSymlinks = flags.followSymlinks
	}
	if command.Flags().Changed(parallelismFlagName) {
		options.MaxParallelism = flags.parallelism
	}
	return options
}

// createIndexCommand returns the index subcommand.
func createIndexCommand(logger *zap.Logger) *cobra.Command {
	var flags buildFlags
	var outputPath string

	indexCommand := &cobra.Command{
		Use:     indexUse,
		Aliases: []string{indexAlias},
		Short:   indexShortDescription,
		Long:    indexLongDescription,
		Example: indexUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) == 0 {
				arguments = []string{defaultPath}
			}
			applicationConfiguration, configurationError := loadConfiguration(flags.configPath)
			if configurationError != nil {
				return configurationError
			}
			buildOptions := resolveBuildOptions(command, flags, applicationConfiguration.Index)
			resolvedOutputPath := outputPath
			if !command.Flags().Changed(outFlagName) && applicationConfiguration.Index.OutputPath != "" {
				resolvedOutputPath = applicationConfiguration.Index.OutputPath
			}
			return runIndex(command.Context(), logger, arguments, buildOptions, resolvedOutputPath)
		},
	}

	addBuildFlags(indexCommand, &flags)
	indexCommand.Flags().StringVar(&outputPath, outFlagName, defaultSnapshotName, outFlagDescription)
	return indexCommand
}

// createTreeCommand returns the tree subcommand.
func createTreeCommand(logger *zap.Logger) *cobra.Command {
	var flags buildFlags
	var outputFormat string
	var copyToClipboard bool

	treeCommand := &cobra.Command{
		Use:     treeUse,
		Aliases: []string{treeAlias},
		Short:   treeShortDescription,
		Long:    treeLongDescription,
		Example: treeUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			targetPath := defaultPath
			if len(arguments) == 1 {
				targetPath = arguments[0]
			}
			applicationConfiguration, configurationError := loadConfiguration(flags.configPath)
			if configurationError != nil {
				return configurationError
			}
			buildOptions := resolveBuildOptions(command, flags, applicationConfiguration.Index)
			resolvedFormat := resolveFormat(command, outputFormat, applicationConfiguration.Index.Format)
			if !isSupportedFormat(resolvedFormat) {
				return fmt.Errorf(invalidFormatMessage, resolvedFormat)
			}
			return runTree(command.Context(), logger, targetPath, buildOptions, resolvedFormat, copyToClipboard)
		},
	}

	addBuildFlags(treeCommand, &flags)
	treeCommand.Flags().StringVar(&outputFormat, formatFlagName, types.FormatRaw, formatFlagDescription)
	treeCommand.Flags().BoolVar(&copyToClipboard, copyFlagName, false, copyFlagDescription)
	return treeCommand
}

// createSearchCommand returns the search subcommand.
func createSearchCommand(logger *zap.Logger) *cobra.Command {
	var flags buildFlags
	var outputFormat string
	var snapshotPath string
	var resultLimit int
	var copyToClipboard bool

	searchCommand := &cobra.Command{
		Use:     searchUse,
		Aliases: []string{searchAlias},
		Short:   searchShortDescription,
		Long:    searchLongDescription,
		Example: searchUsageExample,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(command *cobra.Command, arguments []string) error {
			query := arguments[0]
			targetPath := defaultPath
			if len(arguments) == 2 {
				targetPath = arguments[1]
			}
			applicationConfiguration, configurationError := loadConfiguration(flags.configPath)
			if configurationError != nil {
				return configurationError
			}
			buildOptions := resolveBuildOptions(command, flags, applicationConfiguration.Index)
			resolvedFormat := resolveFormat(command, outputFormat, applicationConfiguration.Search.Format)
			if !isSupportedFormat(resolvedFormat) {
				return fmt.Errorf(invalidFormatMessage, resolvedFormat)
			}
			resolvedLimit := resultLimit
			if !command.Flags().Changed(limitFlagName) && applicationConfiguration.Search.Limit != nil {
				resolvedLimit = *applicationConfiguration.Search.Limit
			}
			return runSearch(command.Context(), logger, query, targetPath, snapshotPath, buildOptions, resolvedFormat, resolvedLimit, copyToClipboard)
		},
	}

	addBuildFlags(searchCommand, &flags)
	searchCommand.Flags().StringVar(&outputFormat, formatFlagName, types.FormatRaw, formatFlagDescription)
	searchCommand.Flags().StringVar(&snapshotPath, fromFlagName, "", fromFlagDescription)
	searchCommand.Flags().IntVar(&resultLimit, limitFlagName, 0, limitFlagDescription)
	searchCommand.Flags().BoolVar(&copyToClipboard, copyFlagName, false, copyFlagDescription)
	return searchCommand
}

// loadConfiguration reads the application configuration, tolerating a
// missing file.
func loadConfiguration(explicitPath string) (config.ApplicationConfiguration, error) {
	return config.LoadApplicationConfiguration(config.LoadOptions{ExplicitFilePath: explicitPath})
}

// resolveFormat picks the output format from flag, configuration, and
// default, in descending precedence.
func resolveFormat(command *cobra.Command, flagValue string, configuredValue string) string {
	if command.Flags().Changed(formatFlagName) {
		return strings.ToLower(flagValue)
	}
	if configuredValue != "" {
		return strings.ToLower(configuredValue)
	}
	return strings.ToLower(flagValue)
}

// runIndex builds every path concurrently and writes one snapshot per path.
// With multiple paths, each extra snapshot name gains the path's base name
// as a suffix to keep files distinct.
func runIndex(ctx context.Context, logger *zap.Logger, inputPaths []string, buildOptions index.Options, outputPath string) error {
	validatedPaths, validationError := resolveAndValidatePaths(inputPaths)
	if validationError != nil {
		return validationError
	}

	group, groupContext := errgroup.WithContext(ctx)
	for _, validatedPath := range validatedPaths {
		targetPath := validatedPath.AbsolutePath
		snapshotPath := snapshotPathFor(outputPath, targetPath, len(validatedPaths) > 1)
		group.Go(func() error {
			buildStart := time.Now()
			rootNode, buildWarnings, buildError := index.Build(groupContext, targetPath, buildOptions)
			if buildError != nil {
				return buildError
			}
			logWarnings(logger, buildWarnings, targetPath)
			payload, serializeError := serial.Serialize(rootNode)
			if serializeError != nil {
				return serializeError
			}
			if writeError := os.WriteFile(snapshotPath, payload, snapshotPermissions); writeError != nil {
				return fmt.Errorf(errorWriteSnapshotFormat, snapshotPath, writeError)
			}
			logger.Info(fmt.Sprintf(indexedLogFormat,
				targetPath,
				utils.FormatFileSize(rootNode.SizeBytes),
				time.Since(buildStart).Round(time.Millisecond),
				snapshotPath))
			return nil
		})
	}
	return group.Wait()
}

// runTree builds a single path and renders its tree to stdout.
func runTree(ctx context.Context, logger *zap.Logger, targetPath string, buildOptions index.Options, outputFormat string, copyToClipboard bool) error {
	validatedPaths, validationError := resolveAndValidatePaths([]string{targetPath})
	if validationError != nil {
		return validationError
	}
	absoluteTargetPath := validatedPaths[0].AbsolutePath

	rootNode, buildWarnings, buildError := index.Build(ctx, absoluteTargetPath, buildOptions)
	if buildError != nil {
		return buildError
	}
	logWarnings(logger, buildWarnings, absoluteTargetPath)

	var rendered string
	var renderError error
	if outputFormat == types.FormatJSON {
		rendered, renderError = output.RenderTreeJSON(rootNode)
	} else {
		rendered = output.RenderTreeRaw(rootNode, absoluteTargetPath)
	}
	if renderError != nil {
		return renderError
	}
	return emitOutput(rendered, copyToClipboard)
}

// runSearch obtains a tree, queries it, and renders the ranked results.
func runSearch(ctx context.Context, logger *zap.Logger, query string, targetPath string, snapshotPath string, buildOptions index.Options, outputFormat string, resultLimit int, copyToClipboard bool) error {
	if query == "" {
		logger.Info(emptyQueryLogMessage)
		return nil
	}

	var rootNode *types.FileNode
	if snapshotPath != "" {
		payload, readError := os.ReadFile(snapshotPath)
		if readError != nil {
			return fmt.Errorf(errorReadSnapshotFormat, snapshotPath, readError)
		}
		deserializedNode, deserializeError := serial.Deserialize(payload)
		if deserializeError != nil {
			return deserializeError
		}
		rootNode = deserializedNode
	} else {
		validatedPaths, validationError := resolveAndValidatePaths([]string{targetPath})
		if validationError != nil {
			return validationError
		}
		builtNode, buildWarnings, buildError := index.Build(ctx, validatedPaths[0].AbsolutePath, buildOptions)
		if buildError != nil {
			return buildError
		}
		logWarnings(logger, buildWarnings, validatedPaths[0].AbsolutePath)
		rootNode = builtNode
	}

	results := search.Query(rootNode, query, resultLimit)

	var rendered string
	var renderError error
	if outputFormat == types.FormatJSON {
		rendered, renderError = output.RenderSearchJSON(results)
	} else {
		rendered = output.RenderSearchRaw(results)
	}
	if renderError != nil {
		return renderError
	}
	return emitOutput(rendered, copyToClipboard)
}

// emitOutput prints the rendered text and optionally copies it to the
// clipboard.
func emitOutput(rendered string, copyToClipboard bool) error {
	fmt.Print(rendered)
	if !strings.HasSuffix(rendered, "\n") {
		fmt.Println()
	}
	if copyToClipboard {
		copier := clipboard.NewService()
		if copyError := copier.Copy(rendered); copyError != nil {
			return fmt.Errorf(errorClipboardFormat, copyError)
		}
	}
	return nil
}

// logWarnings reports collected build warnings through the application
// logger.
func logWarnings(logger *zap.Logger, warnings []types.Warning, targetPath string) {
	if len(warnings) == 0 {
		return
	}
	logger.Warn(fmt.Sprintf(warningCountLogFormat, len(warnings), targetPath))
	for _, warning := range warnings {
		detail := warning.Path
		if warning.Detail != "" {
			detail = warning.Path + ": " + warning.Detail
		}
		logger.Warn(fmt.Sprintf(warningLogFormat, warning.Kind, detail))
	}
}

// snapshotPathFor derives the snapshot file name for one indexed path.
func snapshotPathFor(outputPath string, targetPath string, multiplePaths bool) string {
	if !multiplePaths {
		return outputPath
	}
	extension := filepath.Ext(outputPath)
	baseName := strings.TrimSuffix(outputPath, extension)
	return baseName + "_" + filepath.Base(targetPath) + extension
}

// resolveAndValidatePaths converts input paths to absolute form and
// validates that each exists and is a directory or file, removing
// duplicates.
func resolveAndValidatePaths(inputs []string) ([]types.ValidatedPath, error) {
	seen := make(map[string]struct{})
	var result []types.ValidatedPath
	for _, inputPath := range inputs {
		absolutePath, absolutePathError := filepath.Abs(inputPath)
		if absolutePathError != nil {
			return nil, fmt.Errorf(errorAbsolutePathFormat, inputPath, absolutePathError)
		}
		cleanPath := filepath.Clean(absolutePath)
		if _, alreadySeen := seen[cleanPath]; alreadySeen {
			continue
		}
		pathInfo, fileStatusError := os.Stat(cleanPath)
		if fileStatusError != nil {
			if os.IsNotExist(fileStatusError) {
				return nil, fmt.Errorf(errorPathMissingFormat, inputPath)
			}
			return nil, fmt.Errorf(errorStatFormat, inputPath, fileStatusError)
		}
		seen[cleanPath] = struct{}{}
		result = append(result, types.ValidatedPath{AbsolutePath: cleanPath, IsDir: pathInfo.IsDir()})
	}
	if len(result) == 0 {
		return nil, errors.New(errorNoValidPaths)
	}
	return result, nil
}
